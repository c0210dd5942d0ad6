// Package config loads the render settings shared by the CLI and the worker.
// Files are strict YAML; environment variables override individual values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"framecast/internal/encoder"
	"framecast/internal/pkg/logger"
	"framecast/internal/pkg/util"
	"framecast/internal/render"
	"framecast/internal/surface"
	"framecast/internal/surface/rodsurface"
)

// Config holds the complete render configuration.
type Config struct {
	Render  RenderConfig  `yaml:"render"`
	Browser BrowserConfig `yaml:"browser"`
	Bundle  BundleConfig  `yaml:"bundle"`
	Encoder EncoderConfig `yaml:"encoder"`
	Log     LogConfig     `yaml:"log"`
}

// RenderConfig tunes the capture pipeline.
type RenderConfig struct {
	// Workers is the number of capture surfaces; 0 means one per CPU.
	Workers         int           `yaml:"workers"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	FrameTimeout    time.Duration `yaml:"frame_timeout"`
	// FrameRetries is how often a failed frame is tried again on the same surface.
	FrameRetries *int   `yaml:"frame_retries,omitempty"`
	ScratchDir   string `yaml:"scratch_dir,omitempty"`
	ProbeWidth   uint32 `yaml:"probe_width"`
	ProbeHeight  uint32 `yaml:"probe_height"`
}

// BrowserConfig configures the Chrome processes.
type BrowserConfig struct {
	Bin       string            `yaml:"bin,omitempty"`
	Headless  *bool             `yaml:"headless,omitempty"`
	GPU       bool              `yaml:"gpu"`
	NoSandbox bool              `yaml:"no_sandbox"`
	Flags     map[string]string `yaml:"flags,omitempty"`
}

// BundleConfig controls how the bundle reaches the page.
type BundleConfig struct {
	// InjectScript evaluates bundle.js after the index page loads.
	InjectScript bool `yaml:"inject_script"`
	// Serve exposes the bundle over loopback http instead of file://.
	Serve bool `yaml:"serve"`
}

// EncoderConfig selects and tunes the encoder.
type EncoderConfig struct {
	Strategy    string   `yaml:"strategy"`
	FFmpegPath  string   `yaml:"ffmpeg_path,omitempty"`
	Codec       string   `yaml:"codec"`
	PixelFormat string   `yaml:"pixel_format"`
	CRF         int      `yaml:"crf,omitempty"`
	Preset      string   `yaml:"preset,omitempty"`
	ExtraArgs   []string `yaml:"extra_args,omitempty"`
	StderrLines int      `yaml:"stderr_lines"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	var c Config
	c.setDefaults()
	return &c
}

// Load reads path, applies defaults, environment overrides and validation.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.setDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *Config) setDefaults() {
	def := render.DefaultConfig()

	if c.Render.PageLoadTimeout == 0 {
		c.Render.PageLoadTimeout = def.PageLoadTimeout
	}
	if c.Render.FrameTimeout == 0 {
		c.Render.FrameTimeout = def.FrameTimeout
	}
	if c.Render.FrameRetries == nil {
		n := def.FrameRetries
		c.Render.FrameRetries = &n
	}
	if c.Render.ProbeWidth == 0 {
		c.Render.ProbeWidth = def.ProbeViewport.Width
	}
	if c.Render.ProbeHeight == 0 {
		c.Render.ProbeHeight = def.ProbeViewport.Height
	}

	if c.Browser.Headless == nil {
		on := true
		c.Browser.Headless = &on
	}

	if c.Encoder.Strategy == "" {
		c.Encoder.Strategy = string(encoder.StrategyStream)
	}
	if c.Encoder.Codec == "" {
		c.Encoder.Codec = "libx264"
	}
	if c.Encoder.PixelFormat == "" {
		c.Encoder.PixelFormat = "yuv420p"
	}
	if c.Encoder.StderrLines == 0 {
		c.Encoder.StderrLines = 20
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// applyEnv lets deployments override single values without a file.
func (c *Config) applyEnv() {
	c.Render.Workers = util.IntEnv("RENDER_WORKERS", c.Render.Workers)
	c.Render.ScratchDir = util.Env("RENDER_SCRATCH_DIR", c.Render.ScratchDir)
	c.Browser.Bin = util.Env("CHROME_BIN", c.Browser.Bin)
	c.Browser.NoSandbox = util.BoolEnv("CHROME_NO_SANDBOX", c.Browser.NoSandbox)
	c.Encoder.FFmpegPath = util.Env("FFMPEG_PATH", c.Encoder.FFmpegPath)
	c.Encoder.Strategy = util.Env("ENCODER_STRATEGY", c.Encoder.Strategy)
	c.Log.Level = util.Env("LOG_LEVEL", c.Log.Level)
	c.Log.Format = util.Env("LOG_FORMAT", c.Log.Format)
}

// RenderConfig converts the file settings into the pipeline's Config.
func (c *Config) RenderConfig() render.Config {
	strategy, _ := encoder.ParseStrategy(c.Encoder.Strategy)
	var retries int
	if c.Render.FrameRetries != nil {
		retries = *c.Render.FrameRetries
		if retries == 0 {
			retries = render.NoRetries
		}
	}
	return render.Config{
		Workers:         c.Render.Workers,
		PageLoadTimeout: c.Render.PageLoadTimeout,
		FrameTimeout:    c.Render.FrameTimeout,
		FrameRetries:    retries,
		InjectScript:    c.Bundle.InjectScript,
		ServeBundle:     c.Bundle.Serve,
		ProbeViewport:   surface.Viewport{Width: c.Render.ProbeWidth, Height: c.Render.ProbeHeight},
		Encoder:         strategy,
		ScratchRoot:     c.Render.ScratchDir,
	}
}

// BrowserOptions returns the launcher options.
func (c *Config) BrowserOptions() rodsurface.Options {
	return rodsurface.Options{
		Bin:       c.Browser.Bin,
		Headless:  c.Browser.Headless == nil || *c.Browser.Headless,
		GPU:       c.Browser.GPU,
		NoSandbox: c.Browser.NoSandbox,
		Flags:     c.Browser.Flags,
	}
}

// FFmpeg returns the encoder tool.
func (c *Config) FFmpeg() *encoder.FFmpeg {
	return &encoder.FFmpeg{
		Path:        c.Encoder.FFmpegPath,
		Codec:       c.Encoder.Codec,
		PixelFormat: c.Encoder.PixelFormat,
		CRF:         c.Encoder.CRF,
		Preset:      c.Encoder.Preset,
		ExtraArgs:   c.Encoder.ExtraArgs,
		StderrLines: c.Encoder.StderrLines,
	}
}

// Logger returns a logger config writing to stdout.
func (c *Config) Logger() logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}
