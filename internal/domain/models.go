package domain

import "time"

// Outcome is the availability verdict for a target.
type Outcome string

const (
	OutcomeUp   Outcome = "up"
	OutcomeDown Outcome = "down"
)

// ErrorKindUnexpectedBody marks a successful request whose body did not match expectations.
const ErrorKindUnexpectedBody = "unexpected_body"

// ProbeResult is the outcome of a single probe against a target.
type ProbeResult struct {
	TargetID   string
	TargetName string
	URL        string
	Outcome    Outcome
	ErrorKind  string
	Error      string
	StatusCode int
	Title      string
	Latency    time.Duration
	CheckedAt  time.Time
}
