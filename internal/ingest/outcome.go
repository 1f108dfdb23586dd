package ingest

import "transit-tracker/internal/fleet"

// Outcome is the reply to a position report, shared by the HTTP endpoint
// and NATS request/reply.
type Outcome struct {
	Accepted  bool                `json:"accepted"`
	State     *fleet.VehicleState `json:"state,omitempty"`
	ErrorKind string              `json:"errorKind,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func NewOutcome(s fleet.VehicleState, err error) Outcome {
	if err != nil {
		return Outcome{ErrorKind: fleet.KindOf(err), Error: err.Error()}
	}
	return Outcome{Accepted: true, State: &s}
}
