package api

import (
	"errors"
	"strings"
)

var (
	// ErrNoTutorResponse means a tutor message arrived without its structured
	// payload.
	ErrNoTutorResponse = errors.New("tutor message has no structured response")
	// ErrIncompleteResponse means intro or explanation is missing. Both are
	// mandatory regardless of request type.
	ErrIncompleteResponse = errors.New("tutor response missing intro or explanation")
	// ErrMissingFinalAnswer means an answer-type reply did not carry its final
	// answer.
	ErrMissingFinalAnswer = errors.New("answer response missing final answer")
)

// ValidateTutorResponse enforces the field-presence rules of the exchange
// protocol: intro and explanation are always required, and final_answer is
// populated exactly for answer-type exchanges. Help and hint replies that
// carry a stray final_answer are normalized rather than rejected, because the
// backend's degraded path emits an empty string there.
func ValidateTutorResponse(r *TutorResponse, reqType RequestType) error {
	if r == nil {
		return ErrNoTutorResponse
	}
	if strings.TrimSpace(r.Intro) == "" || strings.TrimSpace(r.Explanation) == "" {
		return ErrIncompleteResponse
	}
	if reqType == RequestAnswer {
		if strings.TrimSpace(r.FinalAnswer) == "" {
			return ErrMissingFinalAnswer
		}
		return nil
	}
	r.FinalAnswer = ""
	return nil
}
