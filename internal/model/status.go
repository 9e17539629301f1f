package model

import "fmt"

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusQueued:     true,
		StatusProcessing: true,
	},
	StatusQueued: {
		StatusQueued:     true,
		StatusProcessing: true,
		StatusError:      true,
	},
	StatusProcessing: {
		StatusProcessing: true,
		StatusCompleted:  true,
		StatusError:      true,
	},
	StatusCompleted: {
		StatusCompleted: true,
	},
	StatusError: {
		StatusError:      true,
		StatusProcessing: true, // retry through advance
		StatusQueued:     true,
	},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok && status != ""
}

// IsTerminal reports whether a polling session must stop on this status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusError
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionJobStatus(job *Job, toStatus string, errorMessage string) error {
	from := job.Status
	if !IsKnownStatus(toStatus) {
		return fmt.Errorf("%w: %q (job_id=%s)", ErrUnknownStatus, toStatus, job.ID)
	}
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("%w: %q -> %q (job_id=%s)", ErrInvalidStatusTransition, from, toStatus, job.ID)
	}
	job.Status = toStatus
	if toStatus == StatusError {
		job.ErrorMessage = errorMessage
	} else {
		job.ErrorMessage = ""
	}
	return nil
}
