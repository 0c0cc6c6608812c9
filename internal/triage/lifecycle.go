package triage

import "github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"

// transitions lists the permitted status edges. Resolved is terminal.
var transitions = map[models.ReportStatus][]models.ReportStatus{
	models.StatusPending:    {models.StatusInProgress, models.StatusResolved},
	models.StatusInProgress: {models.StatusResolved},
}

func CanTransition(from, to models.ReportStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to models.ReportStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
