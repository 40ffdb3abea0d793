package propublica

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banyan-labs/lead-optimizer/internal/resilience"
)

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	want := searchResponse{
		TotalResults: 1,
		Organizations: []Organization{{
			EIN:      133433452,
			Name:     "HOPE HOUSE RECOVERY CENTER",
			City:     "AUSTIN",
			State:    "TX",
			NTEECode: "F22",
		}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "Hope House Recovery Center", r.URL.Query().Get("q"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "Hope House Recovery Center")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(133433452), got[0].EIN)
	assert.Equal(t, "HOPE HOUSE RECOVERY CENTER", got[0].Name)
	assert.Equal(t, "F22", got[0].NTEECode)
}

func TestSearch_NoResultsIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(searchResponse{TotalResults: 0})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "Totally Unregistered LLC")

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_RateLimitedIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "anything")

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestLookup_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations/133433452.json", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(lookupResponse{Organization: &Organization{
			EIN:          133433452,
			Name:         "HOPE HOUSE RECOVERY CENTER",
			State:        "TX",
			TotalRevenue: 1_200_000,
		}})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	got, err := client.Lookup(context.Background(), "13-3433452")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(133433452), got.EIN)
	assert.Equal(t, int64(1_200_000), got.TotalRevenue)
}

func TestLookup_NotFoundReturnsNil(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	got, err := client.Lookup(context.Background(), "00-0000000")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLookup_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Lookup(ctx, "13-3433452")

	require.Error(t, err)
}

func TestFormattedEIN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "13-3433452", Organization{EIN: 133433452}.FormattedEIN())
	assert.Equal(t, "01-2345678", Organization{EIN: 12345678}.FormattedEIN())
}
