// Package events announces rule set changes to downstream consumers.
package events

import (
	"context"
	"time"
)

const (
	TypeCalibrated = "ruleset.calibrated"
	TypeActivated  = "ruleset.activated"
)

// Event is one rule set lifecycle change.
type Event struct {
	Type  string         `json:"type"`
	Tag   string         `json:"tag"`
	RunID string         `json:"run_id,omitempty"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
