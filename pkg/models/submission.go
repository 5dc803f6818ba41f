package models

// SubmissionState is the lifecycle of one waitlist form
type SubmissionState string

const (
	StateIdle       SubmissionState = "idle"
	StateSubmitting SubmissionState = "submitting"
	StateSucceeded  SubmissionState = "succeeded"
	StateFailed     SubmissionState = "failed"
)

// WaitlistRequest is the body sent to the waitlist endpoint
type WaitlistRequest struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	Role          Role   `json:"role,omitempty"`
	Country       string `json:"country,omitempty"`
	HubspotCookie string `json:"hubspotCookie,omitempty"`
}

// WaitlistResponse is the body returned by the waitlist endpoint.
// Successful responses may set AlreadyExists, failures may set Error.
type WaitlistResponse struct {
	AlreadyExists bool   `json:"alreadyExists"`
	Error         string `json:"error,omitempty"`
}
