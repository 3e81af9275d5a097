package risk

import (
	"sync"
	"time"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// KillSwitch is a latched emergency stop with three auto-triggers
// (consecutive losses, error rate, connectivity) plus manual activation.
// Once active, RecordTradeResult and RecordAPIResult are no-ops; Reset is
// explicit.
type KillSwitch struct {
	mu    sync.Mutex
	state types.KillSwitchState

	maxConsecutiveLosses  int
	errorRateWindow       int
	maxErrorRatePct       float64
	connectivityMaxErrors int

	consecutiveLosses int
	successRing       []bool // fixed-size ring of recent trade successes
	ringPos           int
	apiErrorStreak    int
}

// NewKillSwitch builds a switch from risk config.
func NewKillSwitch(cfg config.RiskConfig) *KillSwitch {
	window := cfg.ErrorRateWindow
	if window <= 0 {
		window = 20
	}
	return &KillSwitch{
		maxConsecutiveLosses:  cfg.MaxConsecutiveLosses,
		errorRateWindow:       window,
		maxErrorRatePct:       cfg.MaxErrorRatePct,
		connectivityMaxErrors: cfg.ConnectivityMaxErrors,
		successRing:           make([]bool, 0, window),
	}
}

// State returns the current kill-switch state.
func (k *KillSwitch) State() types.KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// Active reports whether the switch is latched.
func (k *KillSwitch) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.Active
}

// Trigger latches the switch manually or programmatically with a reason.
// No-op if already active.
func (k *KillSwitch) Trigger(trigger types.KillTrigger, reason string, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.triggerLocked(trigger, reason, now)
}

func (k *KillSwitch) triggerLocked(trigger types.KillTrigger, reason string, now time.Time) bool {
	if k.state.Active {
		return false
	}
	k.state = types.KillSwitchState{
		Active:      true,
		Trigger:     trigger,
		TriggeredAt: now,
		Reason:      reason,
	}
	return true
}

// RecordTradeResult feeds the consecutive-losses and error-rate triggers.
// No-op once the switch is already active.
func (k *KillSwitch) RecordTradeResult(success bool, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state.Active {
		return false
	}

	if success {
		k.consecutiveLosses = 0
	} else {
		k.consecutiveLosses++
	}
	k.pushRing(success)

	if k.maxConsecutiveLosses > 0 && k.consecutiveLosses >= k.maxConsecutiveLosses {
		return k.triggerLocked(types.TriggerConsecutiveLosses, "consecutive loss streak", now)
	}
	if k.maxErrorRatePct > 0 && len(k.successRing) >= k.errorRateWindow {
		failures := 0
		for _, s := range k.successRing {
			if !s {
				failures++
			}
		}
		rate := float64(failures) / float64(len(k.successRing)) * 100
		if rate >= k.maxErrorRatePct {
			return k.triggerLocked(types.TriggerErrorRate, "error rate breached", now)
		}
	}
	return false
}

func (k *KillSwitch) pushRing(success bool) {
	if len(k.successRing) < k.errorRateWindow {
		k.successRing = append(k.successRing, success)
		return
	}
	k.successRing[k.ringPos] = success
	k.ringPos = (k.ringPos + 1) % k.errorRateWindow
}

// RecordAPIResult feeds the connectivity trigger: a consecutive API-error
// counter that an API success resets.
func (k *KillSwitch) RecordAPIResult(success bool, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state.Active {
		return false
	}
	if success {
		k.apiErrorStreak = 0
		return false
	}
	k.apiErrorStreak++
	if k.connectivityMaxErrors > 0 && k.apiErrorStreak >= k.connectivityMaxErrors {
		return k.triggerLocked(types.TriggerConnectivity, "consecutive API errors", now)
	}
	return false
}

// Reset explicitly clears the switch and all derived state.
func (k *KillSwitch) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = types.KillSwitchState{}
	k.consecutiveLosses = 0
	k.successRing = k.successRing[:0]
	k.ringPos = 0
	k.apiErrorStreak = 0
}
