package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"polyarb/internal/config"
)

func TestSportsFeedEmitsOnlyOnFinalTransition(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "STATUS_IN_PROGRESS"
		if calls >= 2 {
			status = "STATUS_FINAL"
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"events":[{"id":"g1","status":{"type":{"name":"` + status + `"}},"competitions":[{"competitors":[
			{"homeAway":"home","team":{"displayName":"A"},"score":"3"},
			{"homeAway":"away","team":{"displayName":"B"},"score":"1"}
		]}]}]}`))
	}))
	defer srv.Close()

	httpClient := resty.New()
	cfg := config.SportsFeedConfig{
		Endpoint:     srv.URL,
		PollInterval: time.Hour,
		Leagues:      []config.SportsLeague{{Sport: "football", League: "nfl"}},
	}
	f := NewSportsFeed(cfg, httpClient, testLogger())

	first, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if len(first) != 0 {
		t.Fatalf("in-progress game should not emit, got %d events", len(first))
	}

	second, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected exactly one event on the FINAL transition, got %d", len(second))
	}
	if second[0].Value != "A" {
		t.Fatalf("winner = %q, want A (higher score)", second[0].Value)
	}
	if second[0].Indicator != "nfl_GAME_RESULT" {
		t.Fatalf("indicator = %q, want nfl_GAME_RESULT", second[0].Indicator)
	}

	third, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("third poll: %v", err)
	}
	if len(third) != 0 {
		t.Fatalf("a game that stays FINAL must not re-emit, got %d events", len(third))
	}
}

func TestSportsFeedTieHasNoWinner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"events":[{"id":"g2","status":{"type":{"name":"STATUS_FINAL"}},"competitions":[{"competitors":[
			{"homeAway":"home","team":{"displayName":"A"},"score":"2"},
			{"homeAway":"away","team":{"displayName":"B"},"score":"2"}
		]}]}]}`))
	}))
	defer srv.Close()

	httpClient := resty.New()
	cfg := config.SportsFeedConfig{
		Endpoint:     srv.URL,
		PollInterval: time.Hour,
		Leagues:      []config.SportsLeague{{Sport: "football", League: "nfl"}},
	}
	f := NewSportsFeed(cfg, httpClient, testLogger())

	events, err := f.poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].Value != "" {
		t.Fatalf("a tied game should report an empty winner, got %q", events[0].Value)
	}
}

func TestSportsFeedRoutesPerLeagueURL(t *testing.T) {
	var gotPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"events":[]}`))
	}))
	defer srv.Close()

	httpClient := resty.New()
	cfg := config.SportsFeedConfig{
		Endpoint:     srv.URL,
		PollInterval: time.Hour,
		Leagues: []config.SportsLeague{
			{Sport: "football", League: "nfl"},
			{Sport: "basketball", League: "nba"},
		},
	}
	f := NewSportsFeed(cfg, httpClient, testLogger())

	if _, err := f.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	want := []string{"/football/nfl/scoreboard", "/basketball/nba/scoreboard"}
	if len(gotPaths) != len(want) {
		t.Fatalf("got %d requests, want %d", len(gotPaths), len(want))
	}
	for i, p := range want {
		if gotPaths[i] != p {
			t.Fatalf("request %d path = %q, want %q", i, gotPaths[i], p)
		}
	}
}
