package publishers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/pingwatch/internal/domain"
)

// Event represents an outcome transition published downstream.
type Event struct {
	ID              string         `json:"id"`
	TargetID        string         `json:"target_id"`
	TargetName      string         `json:"target_name"`
	URL             string         `json:"url"`
	Outcome         domain.Outcome `json:"outcome"`
	PreviousOutcome domain.Outcome `json:"previous_outcome,omitempty"`
	ErrorKind       string         `json:"error_kind,omitempty"`
	Error           string         `json:"error,omitempty"`
	StatusCode      int            `json:"status_code,omitempty"`
	Title           string         `json:"title,omitempty"`
	LatencyMs       int64          `json:"latency_ms"`
	CheckedAt       time.Time      `json:"checked_at"`
}

// NewEvent builds the event for a probe result. previous is empty on first observation.
func NewEvent(res domain.ProbeResult, previous domain.Outcome) Event {
	checked := res.CheckedAt
	if checked.IsZero() {
		checked = time.Now()
	}
	return Event{
		ID:              uuid.NewString(),
		TargetID:        res.TargetID,
		TargetName:      res.TargetName,
		URL:             res.URL,
		Outcome:         res.Outcome,
		PreviousOutcome: previous,
		ErrorKind:       res.ErrorKind,
		Error:           res.Error,
		StatusCode:      res.StatusCode,
		Title:           res.Title,
		LatencyMs:       res.Latency.Milliseconds(),
		CheckedAt:       checked.UTC(),
	}
}

// attributes are the routing attributes attached to queue and topic messages.
func (e Event) attributes() map[string]string {
	attrs := map[string]string{
		"event_id":  e.ID,
		"target_id": e.TargetID,
		"outcome":   string(e.Outcome),
	}
	if e.PreviousOutcome != "" {
		attrs["previous_outcome"] = string(e.PreviousOutcome)
	}
	if e.ErrorKind != "" {
		attrs["error_kind"] = e.ErrorKind
	}
	return attrs
}

// summary is a one-line human description, e.g. "api is down (read_timeout)".
func (e Event) summary() string {
	name := e.TargetName
	if name == "" {
		name = e.TargetID
	}
	if e.ErrorKind != "" {
		return fmt.Sprintf("%s is %s (%s)", name, e.Outcome, e.ErrorKind)
	}
	return fmt.Sprintf("%s is %s", name, e.Outcome)
}

func (e Event) payload() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	return string(b), nil
}
