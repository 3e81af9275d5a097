package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// espnFinalStatuses are the ESPN status.type.name values treated as the
// FINAL transition. Anything else (in-progress, scheduled, delayed,
// postponed) is not a completion.
var espnFinalStatuses = map[string]bool{
	"STATUS_FINAL": true,
}

type wireESPNTeam struct {
	DisplayName string `json:"displayName"`
}

type wireESPNCompetitor struct {
	HomeAway string       `json:"homeAway"`
	Team     wireESPNTeam `json:"team"`
	Score    string       `json:"score"`
}

type wireESPNCompetition struct {
	Competitors []wireESPNCompetitor `json:"competitors"`
}

type wireESPNStatusType struct {
	Name string `json:"name"`
}

type wireESPNStatus struct {
	Type wireESPNStatusType `json:"type"`
}

type wireESPNEvent struct {
	ID           string                `json:"id"`
	Status       wireESPNStatus        `json:"status"`
	Competitions []wireESPNCompetition `json:"competitions"`
}

type wireESPNScoreboard struct {
	Events []wireESPNEvent `json:"events"`
}

// SportsFeed polls an ESPN-style scoreboard endpoint per configured league
// and emits DATA_RELEASED exactly once per game, the moment its status
// transitions to FINAL.
type SportsFeed struct {
	*base

	http     *resty.Client
	breaker  *gobreaker.CircuitBreaker
	endpoint string
	leagues  []config.SportsLeague

	lastStatus map[string]string // game_id -> last observed status name
}

// NewSportsFeed builds a feed wired to cfg.
func NewSportsFeed(cfg config.SportsFeedConfig, http *resty.Client, logger *slog.Logger) *SportsFeed {
	f := &SportsFeed{
		http:       http,
		endpoint:   cfg.Endpoint,
		leagues:    cfg.Leagues,
		lastStatus: make(map[string]string),
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sports_feed",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	f.base = newBase(types.FeedSports, cfg.PollInterval, logger, f.poll)
	return f
}

func (f *SportsFeed) poll(ctx context.Context) ([]types.FeedEvent, error) {
	var events []types.FeedEvent
	now := time.Now()

	for _, league := range f.leagues {
		url := fmt.Sprintf("%s/%s/%s/scoreboard", f.endpoint, league.Sport, league.League)
		result, err := f.breaker.Execute(func() (interface{}, error) {
			var out wireESPNScoreboard
			resp, err := f.http.R().
				SetContext(ctx).
				SetResult(&out).
				Get(url)
			if err != nil {
				return nil, types.NewFeedConnectionError(types.FeedSports, "poll", err)
			}
			if resp.IsError() {
				return nil, types.NewFeedConnectionError(types.FeedSports, "poll", fmt.Errorf("status %d for %s/%s", resp.StatusCode(), league.Sport, league.League))
			}
			return out, nil
		})
		if err != nil {
			return nil, err
		}
		board, _ := result.(wireESPNScoreboard)

		for _, ev := range board.Events {
			if ev.ID == "" || len(ev.Competitions) == 0 {
				continue
			}
			statusName := ev.Status.Type.Name
			prev := f.lastStatus[ev.ID]
			f.lastStatus[ev.ID] = statusName
			if !espnFinalStatuses[statusName] || espnFinalStatuses[prev] {
				continue
			}

			homeTeam, awayTeam, homeScore, awayScore := parseESPNCompetitors(ev.Competitions[0])

			winner := ""
			if homeScore > awayScore {
				winner = homeTeam
			} else if awayScore > homeScore {
				winner = awayTeam
			}

			events = append(events, types.FeedEvent{
				FeedType:    types.FeedSports,
				EventType:   types.DataReleased,
				Indicator:   fmt.Sprintf("%s_GAME_RESULT", league.League),
				Value:       winner,
				OutcomeType: types.OutcomeCategorical,
				ReleasedAt:  now,
				ReceivedAt:  now,
				Metadata: map[string]any{
					"game_id":    ev.ID,
					"league":     league.League,
					"home_team":  homeTeam,
					"away_team":  awayTeam,
					"home_score": homeScore,
					"away_score": awayScore,
					"winner":     winner,
				},
				Raw: map[string]any{"game_id": ev.ID, "status": statusName},
			})
		}
	}
	return events, nil
}

// parseESPNCompetitors extracts the home/away team names and scores from a
// competition's competitor list. Missing or unparseable scores are 0.
func parseESPNCompetitors(comp wireESPNCompetition) (homeTeam, awayTeam string, homeScore, awayScore int) {
	for _, c := range comp.Competitors {
		score, _ := strconv.Atoi(c.Score)
		switch c.HomeAway {
		case "home":
			homeTeam = c.Team.DisplayName
			homeScore = score
		case "away":
			awayTeam = c.Team.DisplayName
			awayScore = score
		}
	}
	return
}
