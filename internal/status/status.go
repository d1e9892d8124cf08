// Package status derives the current presence state of an identity from its
// event history. The state is never stored; it is a pure projection of the
// most recent event, so it cannot diverge from the local event store.
package status

import (
	"github.com/fieldclock/fieldclock/internal/models"
)

// State is the derived presence of one identity.
type State struct {
	CurrentlyIn bool             `json:"currently_in"`
	NextKind    models.EventKind `json:"next_kind"`
}

// Derive computes the presence state from the most recent event of an
// identity. A nil last event means the identity has never clocked in.
func Derive(last *models.AttendanceEvent) State {
	if last == nil {
		return State{CurrentlyIn: false, NextKind: models.KindClockIn}
	}
	if last.Kind == models.KindClockIn {
		return State{CurrentlyIn: true, NextKind: models.KindClockOut}
	}
	return State{CurrentlyIn: false, NextKind: models.KindClockIn}
}
