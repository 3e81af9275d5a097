package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// blsSeriesIndicator maps the BLS series IDs the feed is configured to poll
// to the indicator name the rest of the pipeline matches on. A series ID
// absent from this map is silently skipped, mirroring the upstream release
// calendar growing series before the strategy knows what to do with them.
var blsSeriesIndicator = map[string]string{
	"CUSR0000SA0":    "CPI",
	"CUSR0000SA0L1E": "CORE_CPI",
	"CES0000000001":  "NFP",
	"LNS14000000":    "UNEMPLOYMENT",
	"WPSFD4":         "PPI",
}

// blsRequest is the outbound body for the BLS series API's "latest"
// endpoint: always ask for the latest observation per series.
type blsRequest struct {
	SeriesIDs       []string `json:"seriesid"`
	Latest          bool     `json:"latest"`
	RegistrationKey string   `json:"registrationkey,omitempty"`
}

// wireBLSDatapoint is one observation within a series' data array.
type wireBLSDatapoint struct {
	Year   string `json:"year"`
	Period string `json:"period"`
	Value  string `json:"value"`
}

// wireBLSSeries is one series' envelope within Results.series.
type wireBLSSeries struct {
	SeriesID string             `json:"seriesID"`
	Data     []wireBLSDatapoint `json:"data"`
}

// wireBLSResponse is the full BLS API response envelope. Results is decoded
// permissively (as a raw map first) because a malformed or empty response
// must yield no events rather than an error — only transport failures and
// undecodable JSON are feed errors.
type wireBLSResponse struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"Results"`
}

type wireBLSResults struct {
	Series []wireBLSSeries `json:"series"`
}

// EconomicFeed polls a BLS-style release endpoint for a configured set of
// series IDs and emits DATA_RELEASED once per new value per series.
type EconomicFeed struct {
	*base

	http     *resty.Client
	breaker  *gobreaker.CircuitBreaker
	endpoint string
	seriesID []string
	regKey   string

	lastValue map[string]string
}

// NewEconomicFeed builds a feed wired to cfg; http is the shared resty
// client for outbound requests.
func NewEconomicFeed(cfg config.EconomicFeedConfig, http *resty.Client, logger *slog.Logger) *EconomicFeed {
	f := &EconomicFeed{
		http:      http,
		endpoint:  cfg.Endpoint,
		seriesID:  cfg.SeriesIDs,
		regKey:    cfg.RegistrationKey,
		lastValue: make(map[string]string),
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "economic_feed",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	f.base = newBase(types.FeedEconomic, cfg.PollInterval, logger, f.poll)
	return f
}

func (f *EconomicFeed) poll(ctx context.Context) ([]types.FeedEvent, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		body := blsRequest{
			SeriesIDs:       f.seriesID,
			Latest:          true,
			RegistrationKey: f.regKey,
		}
		resp, err := f.http.R().
			SetContext(ctx).
			SetBody(body).
			Post(f.endpoint)
		if err != nil {
			return nil, types.NewFeedConnectionError(types.FeedEconomic, "poll", err)
		}
		if resp.IsError() {
			return nil, types.NewFeedConnectionError(types.FeedEconomic, "poll", fmt.Errorf("status %d", resp.StatusCode()))
		}

		var out wireBLSResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return nil, types.NewFeedParseError(types.FeedEconomic, "poll", err)
		}
		return parseBLSResponse(out, f.logger), nil
	})
	if err != nil {
		return nil, err
	}
	series, _ := result.([]wireBLSSeries)

	now := time.Now()
	var events []types.FeedEvent
	for _, s := range series {
		indicator, ok := blsSeriesIndicator[s.SeriesID]
		if !ok || len(s.Data) == 0 {
			continue
		}
		latest := s.Data[0]
		if prev, ok := f.lastValue[indicator]; ok && prev == latest.Value {
			continue
		}

		evt := types.FeedEvent{
			FeedType:    types.FeedEconomic,
			EventType:   types.DataReleased,
			Indicator:   indicator,
			Value:       latest.Value,
			OutcomeType: types.OutcomeNumeric,
			ReleasedAt:  blsPeriodTime(latest.Year, latest.Period, now),
			ReceivedAt:  now,
			Raw:         map[string]any{"series_id": s.SeriesID, "year": latest.Year, "period": latest.Period, "value": latest.Value},
		}
		if num, perr := decimal.NewFromString(latest.Value); perr == nil {
			evt.NumericValue = num
			evt.HasNumeric = true
		} else {
			f.logger.Warn("economic feed: non-numeric series value", "indicator", indicator, "value", latest.Value)
			evt.HasNumeric = false
		}
		f.lastValue[indicator] = latest.Value
		events = append(events, evt)
	}
	return events, nil
}

// parseBLSResponse applies the API's documented malformed-response rule: a
// status other than REQUEST_SUCCEEDED, or a Results/series shape that
// doesn't decode, yields no series rather than an error. Only the
// transport call and outer JSON decode can fail the poll outright.
func parseBLSResponse(resp wireBLSResponse, logger *slog.Logger) []wireBLSSeries {
	if resp.Status != "" && resp.Status != "REQUEST_SUCCEEDED" {
		logger.Warn("economic feed: non-success status", "status", resp.Status)
		return nil
	}
	if len(resp.Results) == 0 {
		return nil
	}
	var results wireBLSResults
	if err := json.Unmarshal(resp.Results, &results); err != nil {
		logger.Warn("economic feed: malformed Results", "error", err)
		return nil
	}
	return results.Series
}

// blsPeriodTime derives a release timestamp from a BLS year/period pair
// (e.g. "2026", "M06"), falling back to fallback when either is absent or
// unparseable. Monthly periods are M01-M12; anything else falls back.
func blsPeriodTime(year, period string, fallback time.Time) time.Time {
	if year == "" || len(period) != 3 || period[0] != 'M' {
		return fallback
	}
	var y, m int
	if _, err := fmt.Sscanf(year, "%d", &y); err != nil {
		return fallback
	}
	if _, err := fmt.Sscanf(period[1:], "%d", &m); err != nil || m < 1 || m > 12 {
		return fallback
	}
	return time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
}
