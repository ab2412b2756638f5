package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(rpcName+"."+method, req, resp)
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.call("Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResearchStart launches a research job.
func (c *Client) ResearchStart(req ResearchStartRequest) (*ResearchStartResponse, error) {
	var resp ResearchStartResponse
	if err := c.call("ResearchStart", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResearchShow returns details for a single research job.
func (c *Client) ResearchShow(id string) (*ResearchShowResponse, error) {
	var resp ResearchShowResponse
	if err := c.call("ResearchShow", ResearchShowRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResearchList returns research jobs optionally filtered by phase.
func (c *Client) ResearchList(phases []string) (*ResearchListResponse, error) {
	var resp ResearchListResponse
	if err := c.call("ResearchList", ResearchListRequest{Phases: phases}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoCreate submits a hand-written script for rendering.
func (c *Client) VideoCreate(req VideoCreateRequest) (*VideoCreateResponse, error) {
	var resp VideoCreateResponse
	if err := c.call("VideoCreate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoFromResearch renders a video from an analyzed research job.
func (c *Client) VideoFromResearch(req VideoFromResearchRequest) (*VideoCreateResponse, error) {
	var resp VideoCreateResponse
	if err := c.call("VideoFromResearch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoShow returns details for a single video generation.
func (c *Client) VideoShow(id string) (*VideoShowResponse, error) {
	var resp VideoShowResponse
	if err := c.call("VideoShow", VideoShowRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoList returns video generations optionally filtered by status.
func (c *Client) VideoList(statuses []string) (*VideoListResponse, error) {
	var resp VideoListResponse
	if err := c.call("VideoList", VideoListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CampaignCreate registers a recurring campaign.
func (c *Client) CampaignCreate(req CampaignCreateRequest) (*CampaignCreateResponse, error) {
	var resp CampaignCreateResponse
	if err := c.call("CampaignCreate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CampaignList returns all campaigns.
func (c *Client) CampaignList() (*CampaignListResponse, error) {
	var resp CampaignListResponse
	if err := c.call("CampaignList", CampaignListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CampaignSetActive pauses or resumes a campaign.
func (c *Client) CampaignSetActive(id string, active bool) (*CampaignSetActiveResponse, error) {
	var resp CampaignSetActiveResponse
	if err := c.call("CampaignSetActive", CampaignSetActiveRequest{ID: id, Active: active}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CampaignDelete removes a campaign.
func (c *Client) CampaignDelete(id string) (*CampaignDeleteResponse, error) {
	var resp CampaignDeleteResponse
	if err := c.call("CampaignDelete", CampaignDeleteRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CampaignRunNow triggers one scheduler sweep immediately.
func (c *Client) CampaignRunNow() (*CampaignRunNowResponse, error) {
	var resp CampaignRunNowResponse
	if err := c.call("CampaignRunNow", CampaignRunNowRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Publish posts content to platforms and returns the aggregated result.
func (c *Client) Publish(req PublishRequest) (*PublishResponse, error) {
	var resp PublishResponse
	if err := c.call("Publish", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublishList returns recent publish outcomes, newest first.
func (c *Client) PublishList(limit int) (*PublishListResponse, error) {
	var resp PublishListResponse
	if err := c.call("PublishList", PublishListRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
