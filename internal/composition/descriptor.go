// Package composition describes a composition loaded from a bundle and the
// script commands that put a render surface into a given composition state.
package composition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"framecast/internal/frame"
	"framecast/internal/pkg/errors"
)

// Descriptor is the render contract of one composition. It is fetched once
// per render and copied into every worker.
type Descriptor struct {
	ID          string `json:"id"`
	Width       uint32 `json:"width"`
	Height      uint32 `json:"height"`
	FPS         uint32 `json:"fps"`
	TotalFrames uint32 `json:"durationInFrames"`
	// ResolvedProps and DefaultProps are serialized by the bundle and passed
	// back to it untouched.
	ResolvedProps string `json:"serializedResolvedPropsWithCustomSchema"`
	DefaultProps  string `json:"serializedDefaultPropsWithCustomSchema"`
}

// FullRange is [0, TotalFrames).
func (d Descriptor) FullRange() frame.Range {
	return frame.Range{Start: 0, End: d.TotalFrames}
}

// Duration is the play length of n frames at the composition rate.
func (d Descriptor) Duration(n uint32) time.Duration {
	if d.FPS == 0 {
		return 0
	}
	return time.Duration(int64(n) * (int64(time.Second) / int64(d.FPS)))
}

// Validate rejects descriptors that cannot be rendered.
func (d Descriptor) Validate() error {
	switch {
	case d.ID == "":
		return errors.Config("composition_id", "composition has no id")
	case d.Width == 0 || d.Height == 0:
		return errors.Config("composition", "composition %q has zero dimensions %dx%d", d.ID, d.Width, d.Height)
	case d.FPS == 0:
		return errors.Config("composition", "composition %q has zero fps", d.ID)
	}
	return nil
}

// WithProps returns a copy whose resolved props are the shallow merge of
// override onto the current resolved props. Override keys win.
func (d Descriptor) WithProps(override json.RawMessage) (Descriptor, error) {
	override = bytes.TrimSpace(override)
	if len(override) == 0 {
		return d, nil
	}

	var patch map[string]json.RawMessage
	if err := json.Unmarshal(override, &patch); err != nil || patch == nil {
		return d, errors.Config("props", "props override must be a JSON object")
	}

	base := map[string]json.RawMessage{}
	if d.ResolvedProps != "" {
		if err := json.Unmarshal([]byte(d.ResolvedProps), &base); err != nil || base == nil {
			return d, errors.Config("props", "composition %q resolved props are not a JSON object", d.ID)
		}
	}
	for k, v := range patch {
		base[k] = v
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return d, errors.WrapWithCode(err, errors.CodeConfig, "composition.WithProps", "encode merged props")
	}

	out := d
	out.ResolvedProps = string(merged)
	return out, nil
}

// ParseList decodes the value returned by QueryCompositions. The bundle
// answers with a JSON string that itself holds the JSON array, so a quoted
// payload is unwrapped once before decoding.
func ParseList(raw string) ([]Descriptor, error) {
	payload := []byte(raw)
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("decode composition list string: %w", err)
		}
		payload = []byte(inner)
	}

	var list []Descriptor
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, fmt.Errorf("decode composition list: %w", err)
	}
	return list, nil
}

// Find returns the composition with the given id.
func Find(list []Descriptor, id string) (Descriptor, error) {
	for _, d := range list {
		if d.ID == id {
			return d, nil
		}
	}

	ids := make([]string, 0, len(list))
	for _, d := range list {
		ids = append(ids, d.ID)
	}
	return Descriptor{}, errors.Config("composition_id", "unknown composition %q (available: %v)", id, ids)
}
