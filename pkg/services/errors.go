package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/collabiora/landing/pkg/models"
)

// Messages shown to the applicant
const (
	MessageValidation       = "Please fill in all required fields"
	MessageAdded            = "Successfully added to waitlist!"
	MessageAlreadyListed    = "You're already on our waitlist!"
	MessageGenericFailure   = "Something went wrong. Please try again."
	MessageTransportFailure = "Failed to connect. Please try again later."
)

var (
	// ErrSubmissionInProgress is returned by Submit while a submission is
	// in flight or its success is still being displayed
	ErrSubmissionInProgress = errors.New("submission already in progress")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExpired       = errors.New("session expired")
	ErrTooManySessions      = errors.New("too many open sessions")
)

// ValidationError reports required fields that were empty. No request was sent.
type ValidationError struct {
	Missing []models.Field
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return "missing required fields: " + strings.Join(names, ", ")
}

// RequestFailure is a rejection by the waitlist API
type RequestFailure struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("waitlist request failed with status %d: %s", e.StatusCode, e.Message)
}

func (e *RequestFailure) Unwrap() error { return e.Err }

// TransportError means the waitlist API could not be reached or answered garbage
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "waitlist transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// SecondaryIntegrationError wraps a referral registration failure. It is only logged.
type SecondaryIntegrationError struct {
	Err error
}

func (e *SecondaryIntegrationError) Error() string {
	return "referral registration failed: " + e.Err.Error()
}

func (e *SecondaryIntegrationError) Unwrap() error { return e.Err }
