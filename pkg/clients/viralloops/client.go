package viralloops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	// ErrNotReady is returned by Campaign before Init has completed successfully
	ErrNotReady = errors.New("viral loops campaign not ready")
	// ErrNotConfigured is returned by Init when the campaign ID or API token is missing
	ErrNotConfigured = errors.New("viral loops campaign ID and API token are required")
)

// Participant is the identity registered with the referral campaign
type Participant struct {
	Email     string            `json:"email"`
	FirstName string            `json:"firstname"`
	LastName  string            `json:"lastname"`
	ExtraData map[string]string `json:"extraData,omitempty"`
}

// Campaign defines the interface for a loaded referral campaign
type Campaign interface {
	Identify(ctx context.Context, p Participant) error
}

// SDK loads a Viral Loops campaign and hands out a handle to it once ready
type SDK struct {
	apiURL     string
	campaignID string
	apiToken   string
	httpClient *http.Client
	logger     *zap.Logger

	ready    atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewSDK creates a new Viral Loops client. It is not ready until Init succeeds.
func NewSDK(apiURL, campaignID, apiToken string, timeout time.Duration, logger *zap.Logger) *SDK {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SDK{
		apiURL:     strings.TrimRight(apiURL, "/"),
		campaignID: campaignID,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Init verifies that the campaign exists and marks the SDK ready
func (s *SDK) Init(ctx context.Context) error {
	if s.apiToken == "" || s.campaignID == "" {
		return ErrNotConfigured
	}

	getURL := fmt.Sprintf("%s/api/v3/campaign/%s", s.apiURL, url.PathEscape(s.campaignID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("apiToken", s.apiToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error loading campaign: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("error from Viral Loops API: status %d: %s", resp.StatusCode, string(body))
	}

	s.ready.Store(true)
	s.doneOnce.Do(func() { close(s.done) })
	s.logger.Info("Viral Loops campaign ready", zap.String("campaign", s.campaignID))
	return nil
}

// InitWithRetry calls Init until it succeeds, backing off exponentially
// between minInterval and maxInterval. It gives up when ctx is done or the
// SDK is not configured.
func (s *SDK) InitWithRetry(ctx context.Context, minInterval, maxInterval time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minInterval
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0

	op := func() error {
		err := s.Init(ctx)
		if errors.Is(err, ErrNotConfigured) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		s.logger.Warn("Viral Loops unavailable, retrying",
			zap.Duration("retry_in", next), zap.Error(err))
	}

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

// Ready reports whether Init has completed successfully
func (s *SDK) Ready() bool {
	return s.ready.Load()
}

// Done is closed once the SDK becomes ready
func (s *SDK) Done() <-chan struct{} {
	return s.done
}

// Campaign returns the loaded campaign
func (s *SDK) Campaign() (Campaign, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	return &campaignImpl{sdk: s}, nil
}

type campaignImpl struct {
	sdk *SDK
}

func (c *campaignImpl) Identify(ctx context.Context, p Participant) error {
	payload := map[string]interface{}{
		"publicToken": c.sdk.campaignID,
		"user":        p,
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error creating payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.sdk.apiURL+"/api/v3/campaign/participant", bytes.NewReader(jsonPayload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apiToken", c.sdk.apiToken)

	resp, err := c.sdk.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error identifying participant: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("error from Viral Loops API: status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
