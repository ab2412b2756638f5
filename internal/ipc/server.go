package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"reelflow/internal/daemon"
	"reelflow/internal/logging"
	"reelflow/internal/store"
)

// rpcName is the service prefix clients address calls to.
const rpcName = "Reelflow"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName(rpcName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun reelflow daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DBPath = status.DBPath
	resp.LockPath = status.LockFilePath
	resp.WebhookAddr = status.WebhookAddr
	resp.ActiveResearch = status.ActiveResearch
	resp.ResearchRaw = status.Health.ResearchRaw
	resp.ResearchAnalyzed = status.Health.ResearchAnalyzed
	resp.ResearchFailed = status.Health.ResearchFailed
	resp.VideosActive = status.Health.VideosActive
	resp.VideosCompleted = status.Health.VideosCompleted
	resp.VideosFailed = status.Health.VideosFailed
	resp.CampaignsActive = status.Health.CampaignsActive
	resp.HealthError = status.HealthError
	return nil
}

func (s *service) ResearchStart(req ResearchStartRequest, resp *ResearchStartResponse) error {
	jobID, err := s.daemon.StartResearchJob(s.ctx, req.Source, req.Query, req.Depth, req.MaxItems)
	if err != nil {
		return err
	}
	resp.JobID = jobID
	s.log().Info("research job started via IPC",
		logging.String(logging.FieldEventType, "research_start"),
		logging.String(logging.FieldJobID, jobID))
	return nil
}

func (s *service) ResearchShow(req ResearchShowRequest, resp *ResearchShowResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("research job id is required")
	}
	job, err := s.daemon.GetResearchJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Job = FromResearchJob(job)
	return nil
}

func (s *service) ResearchList(req ResearchListRequest, resp *ResearchListResponse) error {
	jobs, err := s.daemon.ListResearchJobs(s.ctx, req.Phases)
	if err != nil {
		return err
	}
	resp.Jobs = make([]ResearchJob, 0, len(jobs))
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, FromResearchJob(job))
	}
	return nil
}

func (s *service) VideoCreate(req VideoCreateRequest, resp *VideoCreateResponse) error {
	videoID, err := s.daemon.CreateVideoFromScript(s.ctx, req.Title, req.Body, req.AvatarProfile, req.AspectRatio)
	if err != nil {
		return err
	}
	resp.VideoID = videoID
	s.log().Info("video created via IPC",
		logging.String(logging.FieldEventType, "video_create"),
		logging.String(logging.FieldVideoID, videoID))
	return nil
}

func (s *service) VideoFromResearch(req VideoFromResearchRequest, resp *VideoCreateResponse) error {
	if strings.TrimSpace(req.ResearchJobID) == "" {
		return errors.New("research job id is required")
	}
	videoID, err := s.daemon.CreateVideoFromResearchJob(s.ctx, req.ResearchJobID, req.AvatarProfile, req.AspectRatio)
	if err != nil {
		return err
	}
	resp.VideoID = videoID
	s.log().Info("video created from research via IPC",
		logging.String(logging.FieldEventType, "video_from_research"),
		logging.String(logging.FieldVideoID, videoID),
		logging.String(logging.FieldJobID, req.ResearchJobID))
	return nil
}

func (s *service) VideoShow(req VideoShowRequest, resp *VideoShowResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("video id is required")
	}
	video, err := s.daemon.GetVideo(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Video = FromVideo(video)
	return nil
}

func (s *service) VideoList(req VideoListRequest, resp *VideoListResponse) error {
	videos, err := s.daemon.ListVideos(s.ctx, req.Statuses)
	if err != nil {
		return err
	}
	resp.Videos = make([]Video, 0, len(videos))
	for _, video := range videos {
		resp.Videos = append(resp.Videos, FromVideo(video))
	}
	return nil
}

func (s *service) CampaignCreate(req CampaignCreateRequest, resp *CampaignCreateResponse) error {
	source, ok := store.ParseSource(req.Source)
	if !ok {
		return fmt.Errorf("unknown source %q", req.Source)
	}
	frequency, ok := store.ParseFrequency(req.Frequency)
	if !ok {
		return fmt.Errorf("unknown frequency %q", req.Frequency)
	}
	var aspect store.AspectRatio
	if req.AspectRatio != "" {
		aspect, ok = store.ParseAspectRatio(req.AspectRatio)
		if !ok {
			return fmt.Errorf("unknown aspect ratio %q", req.AspectRatio)
		}
	}
	campaign, err := s.daemon.CreateCampaign(s.ctx, store.CampaignSpec{
		Source:          source,
		Query:           req.Query,
		AnalysisDepth:   req.AnalysisDepth,
		AvatarProfileID: req.AvatarProfile,
		AspectRatio:     aspect,
		Frequency:       frequency,
		MaxItemsPerRun:  req.MaxItemsPerRun,
		AutoPostEnabled: req.AutoPostEnabled,
		PostPlatforms:   req.PostPlatforms,
	})
	if err != nil {
		return err
	}
	resp.Campaign = FromCampaign(campaign)
	s.log().Info("campaign created via IPC",
		logging.String(logging.FieldEventType, "campaign_create"),
		logging.String(logging.FieldCampaignID, campaign.ID))
	return nil
}

func (s *service) CampaignList(_ CampaignListRequest, resp *CampaignListResponse) error {
	campaigns, err := s.daemon.ListCampaigns(s.ctx)
	if err != nil {
		return err
	}
	resp.Campaigns = make([]Campaign, 0, len(campaigns))
	for _, campaign := range campaigns {
		resp.Campaigns = append(resp.Campaigns, FromCampaign(campaign))
	}
	return nil
}

func (s *service) CampaignSetActive(req CampaignSetActiveRequest, resp *CampaignSetActiveResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("campaign id is required")
	}
	if err := s.daemon.SetCampaignActive(s.ctx, req.ID, req.Active); err != nil {
		return err
	}
	resp.Active = req.Active
	return nil
}

func (s *service) CampaignDelete(req CampaignDeleteRequest, resp *CampaignDeleteResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("campaign id is required")
	}
	if err := s.daemon.DeleteCampaign(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Deleted = true
	return nil
}

func (s *service) CampaignRunNow(_ CampaignRunNowRequest, resp *CampaignRunNowResponse) error {
	if err := s.daemon.RunCampaignsNow(s.ctx); err != nil {
		return err
	}
	resp.Ran = true
	return nil
}

func (s *service) Publish(req PublishRequest, resp *PublishResponse) error {
	if strings.TrimSpace(req.Content) == "" {
		return errors.New("content is required")
	}
	result, err := s.daemon.PublishContent(s.ctx, req.Content, req.Platforms)
	if err != nil {
		return err
	}
	resp.Result = FromPublishResult(result)
	return nil
}

func (s *service) PublishList(req PublishListRequest, resp *PublishListResponse) error {
	results, err := s.daemon.ListPublishResults(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Results = make([]PublishResult, 0, len(results))
	for _, result := range results {
		resp.Results = append(resp.Results, FromPublishResult(result))
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
