package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"framecast/internal/config"
	"framecast/internal/frame"
	apperr "framecast/internal/pkg/errors"
	"framecast/internal/pkg/logger"
	"framecast/internal/pkg/shutdown"
	"framecast/internal/render"
	"framecast/internal/surface/rodsurface"
)

func main() {
	var (
		bundlePath = flag.String("bundle", "", "directory holding index.html of the built bundle")
		compID     = flag.String("composition", "", "composition id to render")
		output     = flag.String("output", "out.mp4", "output video file")
		framesFlag = flag.String("frames", "", "frame range start-end, end exclusive, 0 meaning the last frame")
		propsFlag  = flag.String("props", "", "JSON object merged over the resolved props, or @file")
		workers    = flag.Int("workers", 0, "capture workers, 0 uses the configured value or one per CPU")
		configPath = flag.String("config", "", "YAML config file")
		noProgress = flag.Bool("no-progress", false, "disable the progress bar")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	lc := cfg.Logger()
	lc.Output = os.Stderr
	lc.ServiceName = "framecast-render"
	log := logger.New(lc)
	log.Debug("config loaded", "config", cfg.String())

	opts := render.Options{
		BundlePath:    *bundlePath,
		OutputPath:    *output,
		CompositionID: *compID,
		Workers:       *workers,
	}
	if *framesFlag != "" {
		r, err := frame.ParseRange(*framesFlag)
		if err != nil {
			log.LogFatal("invalid -frames", err)
		}
		opts.Frames = &r
	}
	if *propsFlag != "" {
		props, err := readProps(*propsFlag)
		if err != nil {
			log.LogFatal("invalid -props", err)
		}
		opts.Props = props
	}

	showBar := !*noProgress && term.IsTerminal(int(os.Stderr.Fd()))
	var bar *progressbar.ProgressBar
	if showBar {
		opts.OnProgress = func(p render.Progress) {
			if bar == nil {
				bar = progressbar.NewOptions64(int64(p.Total),
					progressbar.OptionSetDescription("rendering "+*compID),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionThrottle(100*time.Millisecond),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set64(int64(p.Encoded))
		}
	}

	ctx, stop := shutdown.SignalContext(context.Background())
	defer stop()

	renderer := render.New(cfg.RenderConfig(), rodsurface.NewLauncher(cfg.BrowserOptions(), log), cfg.FFmpeg(), log)
	res, err := renderer.Render(ctx, opts)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		err = render.AsAppError(err)
		log.WithFields(apperr.GetFields(err)).Error("render failed",
			"code", string(apperr.GetCode(err)),
			"error", err.Error(),
		)
		stop()
		os.Exit(1)
	}

	size := "?"
	if st, err := os.Stat(res.Artifact.Path); err == nil {
		size = humanize.Bytes(uint64(st.Size()))
	}
	fmt.Printf("%s (%s): %d frames, %s at %d fps, %d workers, took %s\n",
		res.Artifact.Path,
		size,
		res.Artifact.Frames,
		res.Artifact.Duration.Round(time.Millisecond),
		res.Artifact.FPS,
		res.Workers,
		res.Elapsed.Round(time.Millisecond),
	)
}

func readProps(v string) (json.RawMessage, error) {
	data := []byte(v)
	if strings.HasPrefix(v, "@") {
		b, err := os.ReadFile(v[1:])
		if err != nil {
			return nil, err
		}
		data = b
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("props are not valid JSON")
	}
	return json.RawMessage(data), nil
}
