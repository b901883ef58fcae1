package engine

import (
	"time"

	"claude-quota-alerts/internal/usage"
)

// Freshness describes how current the exposed snapshot is.
type Freshness string

const (
	// FreshnessLive means the snapshot came from the most recent cycle.
	FreshnessLive Freshness = "live"
	// FreshnessStale means the most recent cycle failed but an earlier
	// snapshot is still being served.
	FreshnessStale Freshness = "stale"
	// FreshnessUnavailable means no snapshot has ever been obtained.
	FreshnessUnavailable Freshness = "unavailable"
)

// State is the reconciled view the presentation layer reads. It is recomputed
// once per cycle and published as a whole; readers never observe a partially
// updated value.
type State struct {
	Snapshot      *usage.Snapshot `json:"snapshot,omitempty"`
	Freshness     Freshness       `json:"freshness"`
	Err           *usage.Error    `json:"-"`
	LastErrorKind usage.ErrorKind `json:"last_error_kind,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	LastCheckedAt time.Time       `json:"last_checked_at"`
}

// NeedsAuth reports whether the operator must re-authenticate: either no
// credential was found or the one presented was rejected.
func (s State) NeedsAuth() bool {
	return s.LastErrorKind == usage.KindNotAuthenticated || s.LastErrorKind == usage.KindAuth
}

func newState(snap *usage.Snapshot, freshness Freshness, err *usage.Error, checkedAt time.Time) State {
	st := State{
		Snapshot:      snap,
		Freshness:     freshness,
		Err:           err,
		LastCheckedAt: checkedAt,
	}
	if err != nil {
		st.LastErrorKind = err.Kind
		st.LastError = err.Error()
	}
	return st
}
