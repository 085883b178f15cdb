// Package checkpoint holds the persisted progress record of the index build
// and the stores it can live in.
package checkpoint

import (
	"context"
	"time"
)

// Phase is the lifecycle position derived from a State.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseBuilding      Phase = "building"
	PhaseComplete      Phase = "complete"
	PhaseFailed        Phase = "failed"
)

// Default batch sizes for a freshly created state.
const (
	DefaultBatchSize        = 50
	DefaultShingleBatchSize = 500
)

// State is the checkpoint record. Last is exclusive: one past the highest
// record id known to exist. Error is empty unless the build failed.
// Generation changes every time the build restarts from First, so a slice
// started under an earlier build can tell its work was discarded.
type State struct {
	New              bool      `json:"new"`
	Current          int64     `json:"current"`
	First            int64     `json:"first"`
	Last             int64     `json:"last"`
	BatchSize        int       `json:"batch_size"`
	ShingleBatchSize int       `json:"shingle_batch_size"`
	Generation       int64     `json:"generation"`
	Version          string    `json:"version,omitempty"`
	Error            string    `json:"error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Default returns the state of an index that has never been activated.
func Default() State {
	return State{
		New:              true,
		Last:             -1,
		BatchSize:        DefaultBatchSize,
		ShingleBatchSize: DefaultShingleBatchSize,
	}
}

func (s State) Phase() Phase {
	switch {
	case s.New:
		return PhaseUninitialized
	case s.Error != "":
		return PhaseFailed
	case s.Current >= s.Last:
		return PhaseComplete
	default:
		return PhaseBuilding
	}
}

// Halted reports whether the build stopped on an error.
func (s State) Halted() bool { return !s.New && s.Error != "" }

// Complete reports whether every record in [First, Last) has been indexed.
func (s State) Complete() bool { return !s.New && s.Current >= s.Last }

// Ready reports whether lookups can be trusted, allowing the last fuzz
// records to still be pending.
func (s State) Ready(fuzz int64) bool {
	return !s.New && s.Error == "" && s.Current >= s.Last-fuzz
}

// Fraction is the share of the id range already built, in [0, 1].
func (s State) Fraction() float64 {
	if s.New || s.First >= s.Last {
		return 0
	}
	f := 1 - float64(s.Last-s.Current)/float64(s.Last-s.First)
	return min(max(f, 0), 1)
}

// Store persists a single State.
type Store interface {
	// Load returns the stored state, or Default() and false when nothing is
	// stored.
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, s State) error
	Delete(ctx context.Context) error
}
