package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabiora/landing/pkg/models"
)

type fakeCountries struct {
	calls   atomic.Int32
	fail    atomic.Bool
	gate    chan struct{}
	results []models.Country
}

func (f *fakeCountries) FetchAll(ctx context.Context) ([]models.Country, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.fail.Load() {
		return nil, errors.New("countries API unavailable")
	}
	return append([]models.Country(nil), f.results...), nil
}

func country(common string) models.Country {
	return models.Country{CommonName: common, OfficialName: common}
}

func names(countries []models.Country) []string {
	out := make([]string, len(countries))
	for i, c := range countries {
		out[i] = c.CommonName
	}
	return out
}

var sampleCountries = []models.Country{
	{CommonName: "France", OfficialName: "French Republic", Alpha2Code: "FR", Alpha3Code: "FRA"},
	{CommonName: "Burkina Faso", OfficialName: "Burkina Faso", Alpha2Code: "BF", Alpha3Code: "BFA"},
	{CommonName: "Japan", OfficialName: "Japan", Alpha2Code: "JP", Alpha3Code: "JPN"},
	{CommonName: "Angola", OfficialName: "Republic of Angola", Alpha2Code: "AO", Alpha3Code: "AGO"},
	{CommonName: "Andorra", OfficialName: "Principality of Andorra", Alpha2Code: "AD", Alpha3Code: "AND"},
	{CommonName: "Germany", OfficialName: "Federal Republic of Germany", Alpha2Code: "DE", Alpha3Code: "DEU"},
	{CommonName: "Åland Islands", OfficialName: "Åland Islands", Alpha2Code: "AX", Alpha3Code: "ALA"},
}

func TestFilterCountries_EmptySearch(t *testing.T) {
	for _, search := range []string{"", "   ", "\t\n"} {
		got := FilterCountries(search, sampleCountries)
		assert.NotNil(t, got)
		assert.Empty(t, got, "search %q", search)
	}
}

func TestFilterCountries_PrefixBeatsContains(t *testing.T) {
	got := FilterCountries("fra", []models.Country{country("Burkina Faso"), country("France")})
	require.NotEmpty(t, got)
	assert.Equal(t, "France", got[0].CommonName)

	got = FilterCountries("An", sampleCountries)
	want := []string{"Andorra", "Angola", "Åland Islands", "France", "Germany", "Japan"}
	if diff := cmp.Diff(want, names(got)); diff != "" {
		t.Errorf("FilterCountries(An) mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterCountries_MatchesEveryField(t *testing.T) {
	tests := []struct {
		search string
		want   []string
	}{
		{"french rep", []string{"France"}},
		{"de", []string{"Germany"}},
		{"jpn", []string{"Japan"}},
		{"  JAPAN ", []string{"Japan"}},
		{"zz", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			assert.Equal(t, tt.want, names(FilterCountries(tt.search, sampleCountries)))
		})
	}
}

func TestFilterCountries_NoDiacriticFolding(t *testing.T) {
	assert.Empty(t, FilterCountries("aland", sampleCountries))
	assert.Equal(t, []string{"Åland Islands"}, names(FilterCountries("åland", sampleCountries)))
}

func TestFilterCountries_AtMostTen(t *testing.T) {
	var many []models.Country
	for i := 0; i < 25; i++ {
		many = append(many, country(fmt.Sprintf("Island %02d", i)))
	}

	got := FilterCountries("island", many)
	assert.Len(t, got, MaxSuggestions)
	assert.Equal(t, "Island 00", got[0].CommonName)
	assert.Equal(t, "Island 09", got[9].CommonName)
}

func TestFilterCountries_DoesNotReorderInput(t *testing.T) {
	input := []models.Country{country("Germany"), country("Andorra")}
	_ = FilterCountries("a", input)
	assert.Equal(t, []string{"Germany", "Andorra"}, names(input))
}

func TestCountryDirectory_LoadCachesAndSorts(t *testing.T) {
	fetcher := &fakeCountries{results: sampleCountries}
	dir := NewCountryDirectory(fetcher, NewCountryCache(), nil)

	first := dir.Load(context.Background())
	second := dir.Load(context.Background())

	assert.EqualValues(t, 1, fetcher.calls.Load())
	assert.Equal(t, names(first), names(second))
	assert.Equal(t, []string{"Åland Islands", "Andorra", "Angola", "Burkina Faso", "France", "Germany", "Japan"}, names(first))
}

func TestCountryDirectory_FailureIsNotCached(t *testing.T) {
	fetcher := &fakeCountries{results: sampleCountries}
	fetcher.fail.Store(true)
	cache := NewCountryCache()
	dir := NewCountryDirectory(fetcher, cache, nil)

	got := dir.Load(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
	_, cached := cache.Get()
	assert.False(t, cached)

	fetcher.fail.Store(false)
	assert.Len(t, dir.Load(context.Background()), len(sampleCountries))
	assert.EqualValues(t, 2, fetcher.calls.Load())

	// Once cached, later failures are never observed
	fetcher.fail.Store(true)
	assert.Len(t, dir.Load(context.Background()), len(sampleCountries))
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestCountryDirectory_ConcurrentFirstLoadSharesFetch(t *testing.T) {
	fetcher := &fakeCountries{results: sampleCountries, gate: make(chan struct{})}
	dir := NewCountryDirectory(fetcher, nil, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]models.Country, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = dir.Load(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(fetcher.gate)
	wg.Wait()

	assert.EqualValues(t, 1, fetcher.calls.Load())
	for _, r := range results {
		assert.Len(t, r, len(sampleCountries))
	}
}

func TestCountryDirectory_BrowseAndSearch(t *testing.T) {
	dir := NewCountryDirectory(&fakeCountries{results: sampleCountries}, nil, nil)

	assert.Equal(t, []string{"Åland Islands", "Andorra", "Angola"}, names(dir.Browse(context.Background(), 3)))
	assert.Len(t, dir.Browse(context.Background(), 100), len(sampleCountries))
	assert.Equal(t, []string{"Japan"}, names(dir.Search(context.Background(), "jap")))
	assert.Empty(t, dir.Search(context.Background(), " "))
}
