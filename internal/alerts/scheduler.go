package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polyarb/internal/risk"
)

// SummarySource supplies the data the daily summary alert reports.
type SummarySource interface {
	State(now time.Time) risk.MonitorState
}

// DailyScheduler checks once a minute whether the configured UTC hour has
// arrived and, if a summary hasn't already gone out today, builds one from
// the risk snapshot and dispatches it directly (bypassing throttle).
type DailyScheduler struct {
	dispatcher *Dispatcher
	source     SummarySource
	hourUTC    int

	mu           sync.Mutex
	lastSentDate string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDailyScheduler builds a scheduler that fires the daily summary at
// hourUTC (0-23).
func NewDailyScheduler(dispatcher *Dispatcher, source SummarySource, hourUTC int) *DailyScheduler {
	return &DailyScheduler{dispatcher: dispatcher, source: source, hourUTC: hourUTC}
}

// Start runs the once-a-minute check loop in the background.
func (s *DailyScheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(time.Now().UTC())
			}
		}
	}()
}

// Stop halts the check loop and waits for it to exit.
func (s *DailyScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *DailyScheduler) tick(now time.Time) {
	today := now.Format("2006-01-02")

	s.mu.Lock()
	if now.Hour() != s.hourUTC || s.lastSentDate == today {
		s.mu.Unlock()
		return
	}
	s.lastSentDate = today
	s.mu.Unlock()

	state := s.source.State(now)
	msg := s.buildSummary(state, now)
	s.dispatcher.DispatchDirect(context.Background(), msg, now)
}

func (s *DailyScheduler) buildSummary(state risk.MonitorState, now time.Time) AlertMessage {
	return AlertMessage{
		Severity: SeverityInfo,
		Title:    "Daily summary",
		Body: fmt.Sprintf(
			"realized today: %s | realized total: %s | trades today: %d | kill switch: %v",
			state.PnL.RealizedToday.String(),
			state.PnL.RealizedTotal.String(),
			state.PnL.TradesToday,
			state.KillSwitch.Active,
		),
		Fields: map[string]string{
			"realized_today": state.PnL.RealizedToday.String(),
			"realized_total": state.PnL.RealizedTotal.String(),
			"trades_today":   fmt.Sprintf("%d", state.PnL.TradesToday),
			"kill_switch":    fmt.Sprintf("%v", state.KillSwitch.Active),
			"open_positions": fmt.Sprintf("%d", len(state.Positions)),
		},
		SourceEventType: "DAILY_SUMMARY",
		Timestamp:       now,
	}
}
