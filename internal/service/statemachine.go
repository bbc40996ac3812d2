package service

import (
	appErrors "github.com/videobot/broadcast-backend/internal/errors"
	"github.com/videobot/broadcast-backend/internal/model"
)

// transitions is the broadcast lifecycle: which status may move to which.
// completed, cancelled and failed are terminal.
var transitions = map[string][]string{
	model.StatusDraft:     {model.StatusSending, model.StatusScheduled, model.StatusCancelled},
	model.StatusScheduled: {model.StatusSending, model.StatusCancelled},
	model.StatusSending:   {model.StatusPaused, model.StatusCancelled, model.StatusCompleted, model.StatusFailed},
	model.StatusPaused:    {model.StatusSending, model.StatusCancelled},
	model.StatusCompleted: {},
	model.StatusCancelled: {},
	model.StatusFailed:    {},
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a validation error naming both statuses when the
// edge is not in the lifecycle table.
func CheckTransition(from, to string) error {
	if !CanTransition(from, to) {
		return appErrors.NewInvalidTransition(from, to)
	}
	return nil
}
