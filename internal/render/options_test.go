package render

import (
	"runtime"
	"testing"
	"time"

	"framecast/internal/encoder"
	"framecast/internal/frame"
	apperr "framecast/internal/pkg/errors"
)

func TestResolveRange(t *testing.T) {
	tests := []struct {
		name    string
		req     *frame.Range
		total   uint32
		want    frame.Range
		wantErr bool
	}{
		{"nil selects all", nil, 90, frame.Range{Start: 0, End: 90}, false},
		{"explicit", &frame.Range{Start: 10, End: 40}, 90, frame.Range{Start: 10, End: 40}, false},
		{"end zero means total", &frame.Range{Start: 30, End: 0}, 90, frame.Range{Start: 30, End: 90}, false},
		{"whole range", &frame.Range{Start: 0, End: 90}, 90, frame.Range{Start: 0, End: 90}, false},
		{"past end", &frame.Range{Start: 0, End: 91}, 90, frame.Range{}, true},
		{"empty", &frame.Range{Start: 40, End: 40}, 90, frame.Range{}, true},
		{"inverted", &frame.Range{Start: 50, End: 40}, 90, frame.Range{}, true},
		{"start at total", &frame.Range{Start: 90, End: 0}, 90, frame.Range{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRange(tt.req, tt.total)
			if tt.wantErr {
				if !apperr.IsConfig(err) {
					t.Fatalf("expected config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{FrameRetries: -3}.withDefaults()

	if c.PageLoadTimeout != 30*time.Second || c.FrameTimeout != 10*time.Second {
		t.Errorf("unexpected timeouts %s %s", c.PageLoadTimeout, c.FrameTimeout)
	}
	if c.FrameRetries != 0 {
		t.Errorf("negative retries should clamp to 0, got %d", c.FrameRetries)
	}
	if got := (Config{}).withDefaults().FrameRetries; got != 1 {
		t.Errorf("zero retries should take the default of 1, got %d", got)
	}
	if got := (Config{FrameRetries: NoRetries}).withDefaults().FrameRetries; got != 0 {
		t.Errorf("NoRetries should disable retries, got %d", got)
	}
	if got := (Config{FrameRetries: 3}).withDefaults().FrameRetries; got != 3 {
		t.Errorf("explicit retries should be kept, got %d", got)
	}
	if c.Encoder != encoder.StrategyStream {
		t.Errorf("expected stream encoder, got %s", c.Encoder)
	}
	if c.ProbeViewport.Width != 1280 || c.ProbeViewport.Height != 720 {
		t.Errorf("unexpected probe viewport %+v", c.ProbeViewport)
	}
}

func TestConfigWorkers(t *testing.T) {
	if got := (Config{}).workers(0); got != runtime.NumCPU() {
		t.Errorf("expected NumCPU, got %d", got)
	}
	if got := (Config{Workers: 3}).workers(0); got != 3 {
		t.Errorf("expected configured 3, got %d", got)
	}
	if got := (Config{Workers: 3}).workers(5); got != 5 {
		t.Errorf("expected override 5, got %d", got)
	}
}

func TestOptionsValidate(t *testing.T) {
	ok := Options{BundlePath: "b", OutputPath: "o.mp4", CompositionID: "c"}
	if err := ok.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []Options{
		{OutputPath: "o", CompositionID: "c"},
		{BundlePath: "b", CompositionID: "c"},
		{BundlePath: "b", OutputPath: "o"},
		{BundlePath: "b", OutputPath: "o", CompositionID: "c", Workers: -1},
	}
	for i, o := range bad {
		if err := o.validate(); !apperr.IsConfig(err) {
			t.Errorf("case %d: expected config error, got %v", i, err)
		}
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  *Error
		code apperr.Code
	}{
		{&Error{Stage: StageConfig}, apperr.CodeConfig},
		{&Error{Stage: StageProbe}, apperr.CodeSurface},
		{&Error{Stage: StageCapture, Err: apperr.Config("x", "bad")}, apperr.CodeConfig},
		{&Error{Stage: StageCapture}, apperr.CodeSurface},
		{&Error{Stage: StageOrdering}, apperr.CodeOrdering},
		{&Error{Stage: StageEncode}, apperr.CodeEncode},
	}
	for _, tt := range tests {
		if got := tt.err.Code(); got != tt.code {
			t.Errorf("%s: expected %s, got %s", tt.err.Stage, tt.code, got)
		}
	}

	wrapped := AsAppError(&Error{Stage: StageCapture, Missing: []frame.Range{{Start: 3, End: 5}}})
	fields := apperr.GetFields(wrapped)
	if fields["stage"] != "capture" || fields["missing"] != "3-4" {
		t.Errorf("unexpected fields %v", fields)
	}
}
