package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/signalbrief/trends-pipeline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() config.CategorySpec {
	return config.CategorySpec{
		Name:        "tech",
		SourceList:  "list-42",
		MaxItems:    100,
		WindowHours: 24,
		Language:    "en",
	}
}

func TestCollector_Collect_ParsesItems(t *testing.T) {
	var gotBody scrapeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"1","text":"first","author":{"name":"Ada","user_name":"ada"}},
			{"id":"2","text":"second","media":[{"type":"video"}]}
		]`))
	}))
	defer server.Close()

	collector := NewCollector(server.URL, "token-1")

	items, err := collector.Collect(context.Background(), testSpec())

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, "Ada", items[0].Author.Name)
	assert.Equal(t, "video", items[1].Media[0].Type)

	assert.Equal(t, "list-42", gotBody.SourceListID)
	assert.Equal(t, 100, gotBody.MaxItems)
	assert.Equal(t, 24, gotBody.WindowHours)
	assert.Equal(t, "en", gotBody.Language)
}

func TestCollector_Collect_NonSuccessStatusIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	collector := NewCollector(server.URL, "token-1")

	_, err := collector.Collect(context.Background(), testSpec())

	require.Error(t, err)
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusTooManyRequests, providerErr.Status)
	assert.Contains(t, providerErr.Body, "rate limited")
}

func TestCollector_Collect_MalformedEnvelopeIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer server.Close()

	collector := NewCollector(server.URL, "token-1")

	_, err := collector.Collect(context.Background(), testSpec())

	assert.Error(t, err)
}
