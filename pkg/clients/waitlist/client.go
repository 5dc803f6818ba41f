package waitlist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/collabiora/landing/pkg/models"
	"github.com/collabiora/landing/pkg/utils"
)

// APIError is returned when the waitlist endpoint answers with a non-success status
type APIError struct {
	StatusCode int
	// Message is the "error" field of the response body, empty if absent
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("waitlist API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("waitlist API returned status %d: %s", e.StatusCode, e.Message)
}

// Client defines the interface for interacting with the waitlist API
type Client interface {
	Join(ctx context.Context, req models.WaitlistRequest) (*models.WaitlistResponse, error)
}

type clientImpl struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new waitlist client for the API rooted at baseURL
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clientImpl{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *clientImpl) Join(ctx context.Context, data models.WaitlistRequest) (*models.WaitlistResponse, error) {
	jsonPayload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error creating payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/waitlist", bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error joining waitlist: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	var response models.WaitlistResponse
	decodeErr := decodeBody(body, &response)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A failure body that is not JSON still counts as a server rejection
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = response.Error
		}
		c.logger.Warn("Waitlist API rejected submission",
			zap.Int("status", resp.StatusCode),
			zap.String("email_hash", utils.HashString(data.Email)),
			zap.String("error", apiErr.Message))
		return nil, apiErr
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("error parsing response: %w", decodeErr)
	}

	c.logger.Info("Joined waitlist",
		zap.String("email_hash", utils.HashString(data.Email)),
		zap.Bool("already_exists", response.AlreadyExists))
	return &response, nil
}

func decodeBody(body []byte, v interface{}) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
