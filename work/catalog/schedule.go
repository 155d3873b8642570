package catalog

import (
	"context"
	"time"
)

// StartScheduler runs Refresh once per calendar day at the configured
// wall-clock time in the configured timezone, until StopScheduler is called.
// A slow or failed run is not compensated with extra attempts; the stale
// snapshot keeps serving reads until the next successful run.
func (m *Manager) StartScheduler() {
	loc, err := time.LoadLocation(m.Config.RefreshTimezone)
	if err != nil {
		// validated at config load, but never let the scheduler die over it
		m.Logger.Error("{catalog - StartScheduler} bad timezone %q, using UTC: %v", m.Config.RefreshTimezone, err)
		loc = time.UTC
	}

	go func() {
		for {
			next := nextRun(time.Now().In(loc), m.Config.RefreshAt, loc)
			m.Logger.Info("{catalog - StartScheduler} next refresh at %s", next.Format(time.RFC3339))

			select {
			case <-time.After(time.Until(next)):
				m.Refresh(context.Background())
			case <-m.stopChan:
				return
			}
		}
	}()
}

// StopScheduler signals the scheduler loop to stop.
func (m *Manager) StopScheduler() {
	select {
	case <-m.stopChan:
	default:
		close(m.stopChan)
	}
}

// nextRun computes the next occurrence of the "HH:MM" wall-clock time in loc
// strictly after now. Building the candidate from calendar components keeps
// the schedule correct across DST transitions.
func nextRun(now time.Time, at string, loc *time.Location) time.Time {
	clock, err := time.Parse("15:04", at)
	if err != nil {
		// validated at config load; fall back to 02:00
		clock, _ = time.Parse("15:04", "02:00")
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	if !candidate.After(now) {
		candidate = time.Date(now.Year(), now.Month(), now.Day()+1, clock.Hour(), clock.Minute(), 0, 0, loc)
	}
	return candidate
}
