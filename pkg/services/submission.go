package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collabiora/landing/pkg/clients/viralloops"
	"github.com/collabiora/landing/pkg/clients/waitlist"
	"github.com/collabiora/landing/pkg/models"
	"github.com/collabiora/landing/pkg/utils"
)

// Environment gives access to the caller's browser context
type Environment interface {
	// Cookie returns the named cookie, if the caller sent one
	Cookie(name string) (string, bool)
}

// ReferralSDK is the part of the referral client the controller needs
type ReferralSDK interface {
	Ready() bool
	Campaign() (viralloops.Campaign, error)
}

// Celebrator fires the success effect on the page
type Celebrator interface {
	Celebrate()
}

// ControllerOptions tunes the lifecycle of a SubmissionController
type ControllerOptions struct {
	HubspotCookieName string
	ReferralTimeout   time.Duration
	CelebrationDelay  time.Duration
	FieldResetDelay   time.Duration
	StateResetDelay   time.Duration
}

// ControllerDeps are the collaborators of a SubmissionController.
// Referral and Celebrator may be nil.
type ControllerDeps struct {
	API        waitlist.Client
	Referral   ReferralSDK
	Celebrator Celebrator
	Options    ControllerOptions
	Logger     *zap.Logger
}

// Snapshot is a point-in-time view of a form
type Snapshot struct {
	State     models.SubmissionState `json:"state"`
	Message   string                 `json:"message"`
	Applicant models.Applicant       `json:"applicant"`
}

// SubmissionController owns the state of one waitlist form and submits it
type SubmissionController struct {
	api        waitlist.Client
	referral   ReferralSDK
	celebrator Celebrator
	opts       ControllerOptions
	logger     *zap.Logger

	mu        sync.Mutex
	applicant models.Applicant
	state     models.SubmissionState
	message   string
	timers    []*time.Timer
	closed    bool

	background sync.WaitGroup
}

// NewSubmissionController creates an idle controller with an empty form
func NewSubmissionController(deps ControllerDeps) *SubmissionController {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionController{
		api:        deps.API,
		referral:   deps.Referral,
		celebrator: deps.Celebrator,
		opts:       deps.Options,
		logger:     logger,
		state:      models.StateIdle,
	}
}

// UpdateField sets one form field. It never validates.
func (c *SubmissionController) UpdateField(field models.Field, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.applicant.Set(field, value) {
		c.logger.Debug("Ignoring unknown form field", zap.String("field", string(field)))
	}
}

// Snapshot returns the current state, message and form contents
func (c *SubmissionController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *SubmissionController) snapshotLocked() Snapshot {
	return Snapshot{State: c.state, Message: c.message, Applicant: c.applicant}
}

// Submit validates the form and sends it to the waitlist API.
//
// The returned error is nil on success, ErrSubmissionInProgress when called
// while submitting or succeeded, and otherwise one of *ValidationError,
// *RequestFailure or *TransportError. The snapshot always reflects the
// state after the attempt.
func (c *SubmissionController) Submit(ctx context.Context, env Environment) (Snapshot, error) {
	c.mu.Lock()
	if c.state == models.StateSubmitting || c.state == models.StateSucceeded {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrSubmissionInProgress
	}

	applicant := c.applicant.Trimmed()
	if missing := applicant.MissingRequired(); len(missing) > 0 {
		c.state = models.StateFailed
		c.message = MessageValidation
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, &ValidationError{Missing: missing}
	}

	c.state = models.StateSubmitting
	c.message = ""
	c.mu.Unlock()

	req := models.WaitlistRequest{
		FirstName: applicant.FirstName,
		LastName:  applicant.LastName,
		Email:     applicant.Email,
		Country:   applicant.Country,
	}
	if applicant.Role.Valid() {
		req.Role = applicant.Role
	} else if applicant.Role != "" {
		c.logger.Debug("Dropping unknown role", zap.String("role", string(applicant.Role)))
	}
	if env != nil && c.opts.HubspotCookieName != "" {
		if cookie, ok := env.Cookie(c.opts.HubspotCookieName); ok {
			req.HubspotCookie = cookie
		}
	}

	emailHash := utils.HashString(applicant.Email)
	c.logger.Info("Submitting waitlist application", zap.String("email_hash", emailHash))

	resp, err := c.api.Join(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = models.StateFailed

		var apiErr *waitlist.APIError
		if errors.As(err, &apiErr) {
			c.message = apiErr.Message
			if c.message == "" {
				c.message = MessageGenericFailure
			}
			return c.snapshotLocked(), &RequestFailure{StatusCode: apiErr.StatusCode, Message: c.message, Err: err}
		}

		c.logger.Warn("Waitlist API unreachable", zap.String("email_hash", emailHash), zap.Error(err))
		c.message = MessageTransportFailure
		return c.snapshotLocked(), &TransportError{Err: err}
	}

	c.state = models.StateSucceeded
	c.message = MessageAdded
	if resp != nil && resp.AlreadyExists {
		c.message = MessageAlreadyListed
	}

	if c.celebrator != nil {
		c.afterLocked(c.opts.CelebrationDelay, func() {
			c.celebrator.Celebrate()
		})
	}
	c.afterLocked(c.opts.FieldResetDelay, func() {
		c.applicant = models.Applicant{}
	})
	c.afterLocked(c.opts.StateResetDelay, func() {
		if c.state == models.StateSucceeded {
			c.state = models.StateIdle
			c.message = ""
		}
	})

	c.registerReferralLocked(ctx, applicant)

	return c.snapshotLocked(), nil
}

// afterLocked runs fn under the controller lock once d has elapsed,
// unless the controller has been closed by then.
func (c *SubmissionController) afterLocked(d time.Duration, fn func()) {
	if c.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.timers = slices.DeleteFunc(c.timers, func(other *time.Timer) bool { return other == t })
		if c.closed {
			return
		}
		fn()
	})
	c.timers = append(c.timers, t)
}

func (c *SubmissionController) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// registerReferralLocked starts the referral identify call in the background.
// Its outcome is logged and never touches the submission state.
func (c *SubmissionController) registerReferralLocked(ctx context.Context, applicant models.Applicant) {
	if c.referral == nil || c.closed {
		return
	}

	// Detach from the caller so that finishing the HTTP request does not
	// cancel the registration.
	ctx = context.WithoutCancel(ctx)
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Referral registration panicked", zap.Any("panic", r))
			}
		}()

		if err := c.registerReferral(ctx, applicant); err != nil {
			c.logger.Warn("Referral registration failed",
				zap.String("email_hash", utils.HashString(applicant.Email)),
				zap.Error(&SecondaryIntegrationError{Err: err}))
		}
	}()
}

func (c *SubmissionController) registerReferral(ctx context.Context, applicant models.Applicant) error {
	if !c.referral.Ready() {
		c.logger.Info("Referral SDK not ready, skipping registration")
		return nil
	}

	campaign, err := c.referral.Campaign()
	if err != nil {
		return fmt.Errorf("error getting campaign: %w", err)
	}

	participant := viralloops.Participant{
		Email:     applicant.Email,
		FirstName: applicant.FirstName,
		LastName:  applicant.LastName,
	}
	extra := map[string]string{}
	if applicant.Role.Valid() {
		extra["role"] = string(applicant.Role)
	}
	if applicant.Country != "" {
		extra["country"] = applicant.Country
	}
	if len(extra) > 0 {
		participant.ExtraData = extra
	}

	if c.opts.ReferralTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ReferralTimeout)
		defer cancel()
	}

	if err := campaign.Identify(ctx, participant); err != nil {
		return err
	}

	c.logger.Info("Registered referral participant",
		zap.String("email_hash", utils.HashString(applicant.Email)))
	return nil
}

// Close cancels pending resets and waits for background referral calls
func (c *SubmissionController) Close() {
	c.mu.Lock()
	c.closed = true
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.mu.Unlock()

	c.background.Wait()
}
