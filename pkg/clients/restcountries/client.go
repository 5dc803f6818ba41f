package restcountries

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/collabiora/landing/pkg/models"
)

// Client defines the interface for fetching the country reference list
type Client interface {
	FetchAll(ctx context.Context) ([]models.Country, error)
}

type clientImpl struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the given listing URL, which must select
// the name, cca2 and cca3 fields.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clientImpl{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type countryRecord struct {
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	CCA2 string `json:"cca2"`
	CCA3 string `json:"cca3"`
}

func (c *clientImpl) FetchAll(ctx context.Context) ([]models.Country, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching countries: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error from countries API: status %d", resp.StatusCode)
	}

	var records []countryRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	countries := make([]models.Country, 0, len(records))
	for _, r := range records {
		countries = append(countries, models.Country{
			CommonName:   r.Name.Common,
			OfficialName: r.Name.Official,
			Alpha2Code:   r.CCA2,
			Alpha3Code:   r.CCA3,
		})
	}

	c.logger.Debug("Fetched countries", zap.Int("count", len(countries)))
	return countries, nil
}
