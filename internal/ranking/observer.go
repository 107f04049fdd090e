package ranking

import "time"

const (
	PhasePurge    = "purge"
	PhaseInsert   = "insert"
	PhaseDelete   = "delete"
	PhaseActivate = "activate"

	StatusOK     = "ok"
	StatusError  = "error"
	StatusDryRun = "dry_run"
)

// Observer receives refresh timings. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObservePhase(entityType, typology, phase string, rows int, dur time.Duration)
	ObserveRefresh(entityType, typology, status string, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObservePhase(string, string, string, int, time.Duration) {}
func (nopObserver) ObserveRefresh(string, string, string, time.Duration)    {}
