package config

import (
	"errors"
	"fmt"
)

var validAnalysisDepths = map[string]struct{}{
	"basic":         {},
	"standard":      {},
	"comprehensive": {},
}

var validAspectRatios = map[string]struct{}{
	"portrait":  {},
	"landscape": {},
	"square":    {},
}

var validLogFormats = map[string]struct{}{
	"console": {},
	"json":    {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateResearch(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateResearch() error {
	if _, ok := validAnalysisDepths[c.Research.AnalysisDepth]; !ok {
		return fmt.Errorf("research.analysis_depth must be basic, standard, or comprehensive (got %q)", c.Research.AnalysisDepth)
	}
	if c.Research.RetryAttempts > 10 {
		return errors.New("research.retry_attempts must be 10 or fewer")
	}
	return nil
}

func (c *Config) validateRender() error {
	if _, ok := validAspectRatios[c.Render.DefaultAspectRatio]; !ok {
		return fmt.Errorf("render.default_aspect_ratio must be portrait, landscape, or square (got %q)", c.Render.DefaultAspectRatio)
	}
	if c.Render.PollIntervalSeconds > c.Render.TimeoutMinutes*60 {
		return errors.New("render.poll_interval_seconds must not exceed the timeout budget")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.TickIntervalMinutes > 24*60 {
		return errors.New("scheduler.tick_interval_minutes must be 1440 or fewer")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, ok := validLogFormats[c.Logging.Format]; !ok {
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}
