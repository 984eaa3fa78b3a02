package reliability

import (
	"context"
	"errors"
	"net"

	"github.com/mferraz/profai/internal/api"
)

// Failures are terminal here. A failed exchange surfaces to the student and
// the history keeps the optimistic message; nothing is retried. The
// classifier only labels the failure for metrics and user messaging.

// Category buckets a terminal failure by its origin.
type Category string

const (
	CategoryClient          Category = "client"
	CategoryServer          Category = "server"
	CategoryNetwork         Category = "network"
	CategoryInvalidResponse Category = "invalid_response"
	CategoryCanceled        Category = "canceled"
	CategoryUnknown         Category = "unknown"
)

// Classify buckets an error from a backend call.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryCanceled
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode)
	}
	if errors.Is(err, api.ErrNoTutorResponse) ||
		errors.Is(err, api.ErrIncompleteResponse) ||
		errors.Is(err, api.ErrMissingFinalAnswer) {
		return CategoryInvalidResponse
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}
	return CategoryUnknown
}

func classifyStatus(code int) Category {
	switch {
	case code >= 500 || code == 429:
		return CategoryServer
	case code >= 400:
		return CategoryClient
	default:
		return CategoryUnknown
	}
}
