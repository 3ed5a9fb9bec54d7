package engagement

import (
	"context"
	"math"
	"time"
)

const (
	// ActionHeartbeat is the action name carried by every heartbeat.
	ActionHeartbeat = "heartbeat"
	// ActionPageViewEnd closes a page view whose unload had nothing to
	// report. It carries no increment.
	ActionPageViewEnd = "pageview_end"
)

// Heartbeat is the outbound engaged-time increment handed to the transport.
type Heartbeat struct {
	Action    string    `json:"action"`
	Inc       int       `json:"inc"`
	URL       string    `json:"url"`
	URLRef    string    `json:"urlref"`
	Timestamp time.Time `json:"-"`
	// Final is set on the unload flush and on the end record.
	Final bool `json:"-"`
}

// Sink delivers heartbeats. Delivery is fire-and-forget: errors are logged by
// the tracker and never retried.
type Sink interface {
	SendHeartbeat(ctx context.Context, hb Heartbeat) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, hb Heartbeat) error

func (f SinkFunc) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	return f(ctx, hb)
}

// Locator supplies the page location at send time.
type Locator interface {
	Location() (url, referrer string)
}

// Decision is the outcome of one emitter firing.
type Decision struct {
	Emit        bool
	Inc         int
	EngagedSecs float64
}

// Evaluate decides whether the accumulated engaged time is reported. A period
// longer than the heartbeat interval plus a 250ms grace is implausible (the
// process was likely suspended) and is dropped rather than reported.
func Evaluate(engaged, interval time.Duration, enabled bool) Decision {
	secs := engaged.Seconds()
	rounded := int(math.Round(secs))

	return Decision{
		Emit:        enabled && rounded > 0 && engaged <= interval+heartbeatGrace,
		Inc:         rounded,
		EngagedSecs: secs,
	}
}
