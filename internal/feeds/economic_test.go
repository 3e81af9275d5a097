package feeds

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEconomicFeedEmitsOnNewValueOnly(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		value := "3.1"
		if calls > 2 {
			value = "3.2"
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"REQUEST_SUCCEEDED","Results":{"series":[{"seriesID":"CUSR0000SA0","data":[{"year":"2026","period":"M06","value":"` + value + `"}]}]}}`))
	}))
	defer srv.Close()

	httpClient := resty.New().SetBaseURL(srv.URL)
	cfg := config.EconomicFeedConfig{SeriesIDs: []string{"CUSR0000SA0"}, PollInterval: time.Hour}
	f := NewEconomicFeed(cfg, httpClient, testLogger())

	var events []types.FeedEvent
	f.OnEvent(func(e types.FeedEvent) { events = append(events, e) })

	first, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 event on first poll, got %d", len(first))
	}
	if first[0].Indicator != "CPI" {
		t.Fatalf("indicator = %q, want CPI", first[0].Indicator)
	}

	repeat, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(repeat) != 0 {
		t.Fatalf("expected no event when the value repeats, got %d", len(repeat))
	}

	changed, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("third poll: %v", err)
	}
	if len(changed) != 1 || changed[0].Value != "3.2" {
		t.Fatalf("expected one event for the new value 3.2, got %d", len(changed))
	}
}

func TestEconomicFeedUnmappedSeriesIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"REQUEST_SUCCEEDED","Results":{"series":[{"seriesID":"UNKNOWN_SERIES","data":[{"year":"2026","period":"M06","value":"1.0"}]}]}}`))
	}))
	defer srv.Close()

	httpClient := resty.New().SetBaseURL(srv.URL)
	cfg := config.EconomicFeedConfig{SeriesIDs: []string{"UNKNOWN_SERIES"}, PollInterval: time.Hour}
	f := NewEconomicFeed(cfg, httpClient, testLogger())

	events, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for an unmapped series, got %d", len(events))
	}
}

func TestEconomicFeedMalformedResultsYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"REQUEST_SUCCEEDED","Results":"not an object"}`))
	}))
	defer srv.Close()

	httpClient := resty.New().SetBaseURL(srv.URL)
	cfg := config.EconomicFeedConfig{SeriesIDs: []string{"CUSR0000SA0"}, PollInterval: time.Hour}
	f := NewEconomicFeed(cfg, httpClient, testLogger())

	events, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("malformed Results must not raise, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for malformed Results, got %d", len(events))
	}
}

func TestEconomicFeedConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	httpClient := resty.New().SetBaseURL(srv.URL).SetRetryCount(0)
	cfg := config.EconomicFeedConfig{SeriesIDs: []string{"X"}, PollInterval: time.Hour}
	f := NewEconomicFeed(cfg, httpClient, testLogger())

	_, err := f.poll(context.Background())
	if err == nil {
		t.Fatalf("expected a connection error for a 500 response")
	}
	var connErr *types.FeedConnectionError
	if !asFeedConnErr(err, &connErr) {
		t.Fatalf("expected *types.FeedConnectionError, got %T", err)
	}
}

func TestEconomicFeedNonNumericValueStillEmitsAndIsNotStuck(t *testing.T) {
	value := "-"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"REQUEST_SUCCEEDED","Results":{"series":[` +
			`{"seriesID":"CUSR0000SA0","data":[{"year":"2026","period":"M06","value":"` + value + `"}]},` +
			`{"seriesID":"LNS14000000","data":[{"year":"2026","period":"M06","value":"4.1"}]}` +
			`]}}`))
	}))
	defer srv.Close()

	httpClient := resty.New().SetBaseURL(srv.URL)
	cfg := config.EconomicFeedConfig{SeriesIDs: []string{"CUSR0000SA0", "LNS14000000"}, PollInterval: time.Hour}
	f := NewEconomicFeed(cfg, httpClient, testLogger())

	first, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("a non-numeric series value must not fail the whole poll: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected both series to emit, got %d", len(first))
	}
	for _, e := range first {
		if e.Indicator == "CPI" && e.HasNumeric {
			t.Fatalf("expected CPI event to carry HasNumeric=false for a non-numeric value")
		}
	}

	// The non-numeric value must still be cached, so a second poll with the
	// same non-numeric value does not re-emit it.
	repeat, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(repeat) != 0 {
		t.Fatalf("expected no events when both values repeat, got %d", len(repeat))
	}
}

func asFeedConnErr(err error, target **types.FeedConnectionError) bool {
	if e, ok := err.(*types.FeedConnectionError); ok {
		*target = e
		return true
	}
	return false
}
