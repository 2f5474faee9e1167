package plex

import (
	"encoding/json"
	"fmt"
)

// RawSchedulePayload is the typed form of the Plex scheduled-recordings
// response. Only the fields the interval builder needs are modelled; the
// rest of the payload is ignored on decode.
type RawSchedulePayload struct {
	MediaContainer MediaContainer `json:"MediaContainer"`
}

// MediaContainer is the top-level Plex response container.
type MediaContainer struct {
	Size               int                  `json:"size"`
	MediaGrabOperation []MediaGrabOperation `json:"MediaGrabOperation"`
}

// MediaGrabOperation is one scheduled recording operation.
type MediaGrabOperation struct {
	Type     string   `json:"type"`
	Metadata Metadata `json:"Metadata"`
}

// Metadata describes the programme a grab operation will record.
type Metadata struct {
	Title            string  `json:"title"`
	Type             string  `json:"type"`
	GrandparentTitle string  `json:"grandparentTitle"`
	ParentTitle      string  `json:"parentTitle"`
	ParentIndex      int     `json:"parentIndex"`
	Index            int     `json:"index"`
	Media            []Media `json:"Media"`
}

// Media carries the broadcast timing of a scheduled grab.
// Epochs are Unix seconds; offsets widen the recorded interval around
// the broadcast slot.
type Media struct {
	BeginsAt           int64 `json:"beginsAt"`
	EndsAt             int64 `json:"endsAt"`
	StartOffsetSeconds int64 `json:"startOffsetSeconds"`
	EndOffsetSeconds   int64 `json:"endOffsetSeconds"`
}

// payloadProbe detects a missing MediaContainer key, which a plain decode
// into RawSchedulePayload would silently zero-fill.
type payloadProbe struct {
	MediaContainer *MediaContainer `json:"MediaContainer"`
}

// ParsePayload decodes and structurally validates a scheduled-recordings
// response. Untyped data never crosses this boundary: callers receive a
// typed payload or ErrInvalidPayload.
func ParsePayload(data []byte) (*RawSchedulePayload, error) {
	var probe payloadProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if probe.MediaContainer == nil {
		return nil, fmt.Errorf("%w: missing MediaContainer", ErrInvalidPayload)
	}
	return &RawSchedulePayload{MediaContainer: *probe.MediaContainer}, nil
}

// Entries returns the grab operations, nil-safe.
func (p *RawSchedulePayload) Entries() []MediaGrabOperation {
	if p == nil {
		return nil
	}
	return p.MediaContainer.MediaGrabOperation
}
