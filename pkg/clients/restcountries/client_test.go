package restcountries

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabiora/landing/pkg/models"
)

func TestFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "name,cca2,cca3", r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`[
			{"name":{"common":"France","official":"French Republic","nativeName":{}},"cca2":"FR","cca3":"FRA"},
			{"name":{"common":"Burkina Faso","official":"Burkina Faso"},"cca2":"BF","cca3":"BFA"}
		]`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL+"/v3.1/all?fields=name,cca2,cca3", time.Second, nil).FetchAll(context.Background())
	require.NoError(t, err)

	want := []models.Country{
		{CommonName: "France", OfficialName: "French Republic", Alpha2Code: "FR", Alpha3Code: "FRA"},
		{CommonName: "Burkina Faso", OfficialName: "Burkina Faso", Alpha2Code: "BF", Alpha3Code: "BFA"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchAll() mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAll_Errors(t *testing.T) {
	t.Run("bad status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second, nil).FetchAll(context.Background())
		assert.ErrorContains(t, err, "status 503")
	})

	t.Run("bad body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message":"not a list"}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second, nil).FetchAll(context.Background())
		assert.ErrorContains(t, err, "error parsing response")
	})
}
