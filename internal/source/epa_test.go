package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghgquant/internal/config"
	apperrors "ghgquant/internal/errors"
	"ghgquant/pkg/contracts/domain"
)

func testSourceConfig(baseURL string, batchSize int) config.SourceConfig {
	return config.SourceConfig{
		EPABaseURL:   baseURL,
		DefaultTable: "pub_facts_sector_ghg_emission",
		BatchSize:    batchSize,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RateLimitRPS: 1000, // no throttling in tests
	}
}

func makeRows(n, start int) []domain.RawRecord {
	rows := make([]domain.RawRecord, n)
	for i := range rows {
		rows[i] = domain.RawRecord{
			"facility_id":   fmt.Sprintf("%d", start+i),
			"state":         "NJ",
			"year":          2020,
			"sector_name":   "Power",
			"co2e_emission": 1.0,
		}
	}
	return rows
}

func TestEPAFetchPagesUntilShortPage(t *testing.T) {
	var urls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urls = append(urls, r.URL.Path)
		switch len(urls) {
		case 1:
			json.NewEncoder(w).Encode(makeRows(3, 0))
		default:
			json.NewEncoder(w).Encode(makeRows(1, 3)) // short page ends paging
		}
	}))
	defer server.Close()

	client := NewEPAClient(testSourceConfig(server.URL, 3), nil)
	records, err := client.Fetch(context.Background(), Query{SourceID: SourceIDEPA, StateCode: "NJ", Year: 2020})

	require.NoError(t, err)
	assert.Len(t, records, 4)
	require.Len(t, urls, 2)
	assert.Equal(t, "/pub_facts_sector_ghg_emission/STATE_CODE/NJ/REPORTING_YEAR/2020/JSON/rows/0:2", urls[0])
	assert.Equal(t, "/pub_facts_sector_ghg_emission/STATE_CODE/NJ/REPORTING_YEAR/2020/JSON/rows/3:5", urls[1])
}

func TestEPAFetchOmitsYearSegmentWhenUnset(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(makeRows(1, 0))
	}))
	defer server.Close()

	client := NewEPAClient(testSourceConfig(server.URL, 100), nil)
	_, err := client.Fetch(context.Background(), Query{SourceID: SourceIDEPA, StateCode: "NJ"})

	require.NoError(t, err)
	assert.Equal(t, "/pub_facts_sector_ghg_emission/STATE_CODE/NJ/JSON/rows/0:99", gotPath)
}

func TestEPAFetchEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.RawRecord{})
	}))
	defer server.Close()

	client := NewEPAClient(testSourceConfig(server.URL, 100), nil)
	_, err := client.Fetch(context.Background(), Query{SourceID: SourceIDEPA, StateCode: "WY"})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeEmptyResult),
		"zero matching records is EMPTY_RESULT, not a network failure")
}

func TestEPAFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(makeRows(1, 0))
	}))
	defer server.Close()

	client := NewEPAClient(testSourceConfig(server.URL, 100), nil)
	records, err := client.Fetch(context.Background(), Query{SourceID: SourceIDEPA, StateCode: "NJ"})

	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(3), calls.Load(), "two 502s then success")
}

func TestEPAFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewEPAClient(testSourceConfig(server.URL, 100), nil)
	_, err := client.Fetch(context.Background(), Query{SourceID: SourceIDEPA, StateCode: "NJ"})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNetwork))
	assert.Equal(t, int32(1), calls.Load(), "4xx is permanent")
}

func TestEPAFetchMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer server.Close()

	client := NewEPAClient(testSourceConfig(server.URL, 100), nil)
	_, err := client.Fetch(context.Background(), Query{SourceID: SourceIDEPA, StateCode: "NJ"})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

func TestEPAFetchRejectsUnknownStateBeforeNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the upstream for an invalid query")
	}))
	defer server.Close()

	client := NewEPAClient(testSourceConfig(server.URL, 100), nil)
	_, err := client.Fetch(context.Background(), Query{SourceID: SourceIDEPA, StateCode: "XX"})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, retryableStatus(http.StatusInternalServerError))
	assert.True(t, retryableStatus(http.StatusBadGateway))
	assert.True(t, retryableStatus(http.StatusRequestTimeout))
	assert.True(t, retryableStatus(http.StatusTooManyRequests))
	assert.False(t, retryableStatus(http.StatusNotFound))
	assert.False(t, retryableStatus(http.StatusBadRequest))
}
