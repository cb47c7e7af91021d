// Package progress defines the telemetry events emitted while a crawl runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageRunDone  Stage = "RUN_DONE"
	StageVisit    Stage = "VISIT"
)

// Event captures a single step of crawl progress. Visit events mirror the
// audit log entries; they exist for logs and metrics and may be dropped
// under backpressure.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Domain is the host the visit belongs to.
	Domain string
	URL    string
	// Status is the audit status (accepted, dropped, skipped, error).
	Status string
	Reason string
	// Delay is the pacing delay applied before the visit.
	Delay time.Duration
	// CrossDomainCalls counts distinct foreign hosts the page contacted.
	CrossDomainCalls int
	// Failures is the domain failure count after the event.
	Failures int
	// Dur captures visit latency or total run time.
	Dur  time.Duration
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageVisit:
		if e.Status == "" {
			return errors.New("visit requires status")
		}
		if e.Reason == "" {
			return errors.New("visit requires reason")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 || e.Delay < 0 {
		return errors.New("durations must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
