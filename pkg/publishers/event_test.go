package publishers

import (
	"testing"
	"time"

	"github.com/samvad-hq/pingwatch/internal/domain"
)

func TestNewEventCopiesProbeResult(t *testing.T) {
	checked := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("IST", 19800))
	evt := NewEvent(domain.ProbeResult{
		TargetID:   "web",
		TargetName: "Web",
		URL:        "http://web.local/",
		Outcome:    domain.OutcomeUp,
		StatusCode: 200,
		Title:      "Home",
		Latency:    1500 * time.Millisecond,
		CheckedAt:  checked,
	}, "")

	if evt.ID == "" {
		t.Fatalf("event id not generated")
	}
	if evt.LatencyMs != 1500 || evt.Title != "Home" || evt.StatusCode != 200 {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.PreviousOutcome != "" {
		t.Fatalf("first observation must have no previous outcome, got %q", evt.PreviousOutcome)
	}
	if !evt.CheckedAt.Equal(checked) || evt.CheckedAt.Location() != time.UTC {
		t.Fatalf("CheckedAt = %s", evt.CheckedAt)
	}
}

func TestNewEventIDsAreUnique(t *testing.T) {
	a := NewEvent(domain.ProbeResult{TargetID: "x"}, "")
	b := NewEvent(domain.ProbeResult{TargetID: "x"}, "")
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %s twice", a.ID)
	}
}
