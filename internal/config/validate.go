package config

import (
	"fmt"
	"strings"

	"framecast/internal/encoder"
	apperr "framecast/internal/pkg/errors"
)

// Validate checks that every value is usable and returns the first problem
// as a CONFIG_ERROR.
func (c *Config) Validate() error {
	if err := c.Render.Validate(); err != nil {
		return err
	}
	if err := c.Encoder.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}

// Validate checks the pipeline settings.
func (r *RenderConfig) Validate() error {
	switch {
	case r.Workers < 0:
		return apperr.Config("render.workers", "workers must not be negative, got %d", r.Workers)
	case r.PageLoadTimeout < 0:
		return apperr.Config("render.page_load_timeout", "page_load_timeout must be positive, got %s", r.PageLoadTimeout)
	case r.FrameTimeout < 0:
		return apperr.Config("render.frame_timeout", "frame_timeout must be positive, got %s", r.FrameTimeout)
	case r.FrameRetries != nil && *r.FrameRetries < 0:
		return apperr.Config("render.frame_retries", "frame_retries must not be negative, got %d", *r.FrameRetries)
	}
	return nil
}

// Validate checks the encoder settings.
func (e *EncoderConfig) Validate() error {
	if _, err := encoder.ParseStrategy(e.Strategy); err != nil {
		return apperr.Config("encoder.strategy", "%v", err)
	}
	if e.CRF < 0 || e.CRF > 51 {
		return apperr.Config("encoder.crf", "crf must be between 0 and 51, got %d", e.CRF)
	}
	if e.StderrLines < 0 {
		return apperr.Config("encoder.stderr_lines", "stderr_lines must not be negative, got %d", e.StderrLines)
	}
	return nil
}

// Validate checks the logging settings.
func (l *LogConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return apperr.Config("log.level", "unknown log level %q", l.Level)
	}
	switch l.Format {
	case "json", "text":
	default:
		return apperr.Config("log.format", "log format must be json or text, got %q", l.Format)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("workers=%d encoder=%s headless=%t serve=%t",
		c.Render.Workers, c.Encoder.Strategy, c.Browser.Headless == nil || *c.Browser.Headless, c.Bundle.Serve)
}
