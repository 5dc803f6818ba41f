package services

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/collabiora/landing/pkg/clients/restcountries"
	"github.com/collabiora/landing/pkg/models"
)

// MaxSuggestions caps the result of FilterCountries
const MaxSuggestions = 10

// CountryCache holds the country list for the lifetime of the process.
// The list is replaced as a whole and never mutated in place.
type CountryCache struct {
	countries atomic.Pointer[[]models.Country]
}

// NewCountryCache returns an empty cache
func NewCountryCache() *CountryCache {
	return &CountryCache{}
}

// Get returns the cached list and whether one has been stored
func (c *CountryCache) Get() ([]models.Country, bool) {
	p := c.countries.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Set stores the list
func (c *CountryCache) Set(countries []models.Country) {
	c.countries.Store(&countries)
}

// CountryDirectory serves the cached country list and searches it
type CountryDirectory struct {
	client restcountries.Client
	cache  *CountryCache
	group  singleflight.Group
	logger *zap.Logger
}

// NewCountryDirectory creates a directory backed by client and cache
func NewCountryDirectory(client restcountries.Client, cache *CountryCache, logger *zap.Logger) *CountryDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewCountryCache()
	}
	return &CountryDirectory{client: client, cache: cache, logger: logger}
}

// Load returns every country sorted by common name. The list is fetched on
// first use and cached; concurrent first calls share a single fetch. A failed
// fetch yields an empty list and is not cached, so a later call retries.
// Callers must not modify the returned slice.
func (d *CountryDirectory) Load(ctx context.Context) []models.Country {
	if countries, ok := d.cache.Get(); ok {
		return countries
	}

	v, err, shared := d.group.Do("countries", func() (interface{}, error) {
		if countries, ok := d.cache.Get(); ok {
			return countries, nil
		}

		countries, err := d.client.FetchAll(ctx)
		if err != nil {
			return nil, err
		}

		sortByCommonName(countries)
		d.cache.Set(countries)
		d.logger.Info("Cached country list", zap.Int("count", len(countries)))
		return countries, nil
	})
	if err != nil {
		d.logger.Error("Error fetching countries", zap.Error(err), zap.Bool("shared", shared))
		return []models.Country{}
	}

	return v.([]models.Country)
}

// Browse returns the first limit countries of the full list
func (d *CountryDirectory) Browse(ctx context.Context, limit int) []models.Country {
	countries := d.Load(ctx)
	if limit >= 0 && limit < len(countries) {
		countries = countries[:limit]
	}
	return countries
}

// Search loads the list and filters it with FilterCountries
func (d *CountryDirectory) Search(ctx context.Context, searchText string) []models.Country {
	if strings.TrimSpace(searchText) == "" {
		return []models.Country{}
	}
	return FilterCountries(searchText, d.Load(ctx))
}

// FilterCountries returns at most MaxSuggestions countries whose common name,
// official name or ISO codes contain searchText, case-insensitively.
// Countries whose common name starts with the search text come first; each
// group is ordered by common name. An empty search returns no countries.
func FilterCountries(searchText string, countries []models.Country) []models.Country {
	search := strings.ToLower(strings.TrimSpace(searchText))
	if search == "" {
		return []models.Country{}
	}

	type match struct {
		country models.Country
		common  string
		prefix  bool
	}

	var matched []match
	for _, country := range countries {
		common := strings.ToLower(country.CommonName)
		if strings.Contains(common, search) ||
			strings.Contains(strings.ToLower(country.OfficialName), search) ||
			strings.Contains(strings.ToLower(country.Alpha2Code), search) ||
			strings.Contains(strings.ToLower(country.Alpha3Code), search) {
			matched = append(matched, match{
				country: country,
				common:  common,
				prefix:  strings.HasPrefix(common, search),
			})
		}
	}

	col := newCollator()
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].prefix != matched[j].prefix {
			return matched[i].prefix
		}
		return col.CompareString(matched[i].common, matched[j].common) < 0
	})

	if len(matched) > MaxSuggestions {
		matched = matched[:MaxSuggestions]
	}

	result := make([]models.Country, len(matched))
	for i, m := range matched {
		result[i] = m.country
	}
	return result
}

func sortByCommonName(countries []models.Country) {
	col := newCollator()
	sort.SliceStable(countries, func(i, j int) bool {
		return col.CompareString(countries[i].CommonName, countries[j].CommonName) < 0
	})
}

// A Collator keeps internal buffers, so every sort gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.English)
}
