package faults

import (
	"errors"

	"github.com/tubepulse/tubepulse/pkg/models"
)

// Classify converts any error into a user-facing error result. It is total: errors
// that are not classified domain errors map to KindUnknown.
func Classify(err error) models.ErrorResult {
	details := ""
	if err != nil {
		details = err.Error()
	}

	var fe *Error
	if !errors.As(err, &fe) {
		return models.ErrorResult{
			Status:    "error",
			ErrorType: KindUnknown,
			Message:   "An unexpected error occurred.",
			Details:   details,
		}
	}

	switch fe.Kind {
	case KindQuotaExceeded:
		return models.ErrorResult{
			Status:    "error",
			ErrorType: KindQuotaExceeded,
			Message:   "API quota exceeded. Please try again in a moment.",
			Details:   details,
		}
	case KindAuthenticationFailed:
		return models.ErrorResult{
			Status:    "error",
			ErrorType: KindAuthenticationFailed,
			Message:   "Authentication failed. Check your API key.",
			Details:   details,
		}
	case KindAnalysisFailed:
		return models.ErrorResult{
			Status:    "error",
			ErrorType: KindAnalysisFailed,
			Message:   "Analysis failed. Please try with different input.",
			Details:   details,
		}
	case KindInvalidInput:
		return models.ErrorResult{
			Status:    "error",
			ErrorType: KindInvalidInput,
			Message:   fe.Error(),
		}
	default:
		return models.ErrorResult{
			Status:    "error",
			ErrorType: KindUnknown,
			Message:   "An unexpected error occurred.",
			Details:   details,
		}
	}
}
