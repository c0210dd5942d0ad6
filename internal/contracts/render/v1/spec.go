package v1

import (
	"bytes"
	"encoding/json"
	"path"
	"strings"

	"framecast/internal/frame"
	apperr "framecast/internal/pkg/errors"
)

// DefaultOutputName is used when a job does not name its video.
const DefaultOutputName = "video.mp4"

// JobSpec v1: what a render job asks the worker to produce.
// - bundle_path: bundle directory as seen by the worker
// - composition_id: composition to render
// - output_name: file name of the artifact under renders/<id>/
// - props: JSON object merged over the composition's resolved props
// - frames: optional [start, end) range, end 0 meaning the last frame
type JobSpec struct {
	BundlePath    string          `json:"bundle_path"`
	CompositionID string          `json:"composition_id"`
	OutputName    string          `json:"output_name,omitempty"`
	Props         json.RawMessage `json:"props,omitempty"`
	Frames        *FrameRange     `json:"frames,omitempty"`
	Workers       int             `json:"workers,omitempty"`
}

// FrameRange is the wire form of frame.Range.
type FrameRange struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Range converts to the pipeline's range, nil when unset.
func (f *FrameRange) Range() *frame.Range {
	if f == nil {
		return nil
	}
	return &frame.Range{Start: f.Start, End: f.End}
}

// Normalize trims fields and fills defaults.
func (s *JobSpec) Normalize() {
	s.BundlePath = strings.TrimSpace(s.BundlePath)
	s.CompositionID = strings.TrimSpace(s.CompositionID)
	s.OutputName = strings.TrimSpace(s.OutputName)
	if s.OutputName == "" {
		s.OutputName = DefaultOutputName
	}
	if bytes.Equal(bytes.TrimSpace(s.Props), []byte("null")) {
		s.Props = nil
	}
}

// Validate checks a normalized spec.
func (s *JobSpec) Validate() error {
	switch {
	case s.BundlePath == "":
		return apperr.ValidationField("bundle_path", "bundle_path is required")
	case s.CompositionID == "":
		return apperr.ValidationField("composition_id", "composition_id is required")
	case s.OutputName != path.Base(s.OutputName) || s.OutputName == "." || s.OutputName == "..":
		return apperr.ValidationField("output_name", "output_name must be a plain file name")
	case s.Workers < 0:
		return apperr.ValidationField("workers", "workers must not be negative")
	}
	if len(s.Props) > 0 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(s.Props, &obj); err != nil {
			return apperr.ValidationField("props", "props must be a JSON object")
		}
	}
	if s.Frames != nil && s.Frames.End != 0 && s.Frames.Start >= s.Frames.End {
		return apperr.ValidationField("frames", "frames.start must be below frames.end")
	}
	return nil
}
