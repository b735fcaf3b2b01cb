package input

import (
	"fmt"
	"sync"
	"time"

	"throttlerun/broker/internal/logging"
)

// ValidationReason identifies why a throttle intent was rejected by the validator.
type ValidationReason string

const (
	ValidationReasonNone           ValidationReason = ""
	ValidationReasonThrottleRange  ValidationReason = "throttle_range"
	ValidationReasonThrottleDelta  ValidationReason = "throttle_delta"
	ValidationReasonCooldownActive ValidationReason = "cooldown_active"
)

// ThrottleConstraints configures the validator's range, delta, and cooldown policies.
// Min/Max bound the accepted throttle inclusively; MaxDelta limits how far the
// throttle may jump between consecutive accepted intents. A MaxDelta of zero
// disables the delta check.
type ThrottleConstraints struct {
	Min                int32
	Max                int32
	MaxDelta           int32
	InvalidBurstLimit  int
	InvalidBurstWindow time.Duration
	CooldownDuration   time.Duration
	MaxCooldownStrikes int
}

// DefaultThrottleConstraints provides the tuned baseline for production traffic.
// The range mirrors the strongest burn the vehicle hardware model tolerates per
// tick in either direction.
var DefaultThrottleConstraints = ThrottleConstraints{
	Min:                -100,
	Max:                100,
	MaxDelta:           50,
	InvalidBurstLimit:  5,
	InvalidBurstWindow: time.Second,
	CooldownDuration:   500 * time.Millisecond,
	MaxCooldownStrikes: 3,
}

// ValidationDecision summarises the result of a Validate call.
type ValidationDecision struct {
	Accepted   bool
	Reason     ValidationReason
	Disconnect bool
	Cooldown   time.Duration
	Details    string
}

// ValidationCounters aggregates per-client violation statistics.
type ValidationCounters struct {
	Violations  map[ValidationReason]uint64 `json:"violations,omitempty"`
	Cooldowns   uint64                      `json:"cooldowns"`
	Disconnects uint64                      `json:"disconnects"`
}

type validatorClientState struct {
	lastThrottle  int32
	hasLast       bool
	firstInvalid  time.Time
	invalidCount  int
	cooldownUntil time.Time
	strikes       int
}

// ValidatorOption customises validator construction.
type ValidatorOption func(*Validator)

// WithValidatorClock overrides the clock used to determine cooldown windows.
func WithValidatorClock(clock Clock) ValidatorOption {
	return func(v *Validator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// Validator enforces throttle ranges, delta limits, and cooldown behaviour.
type Validator struct {
	mu      sync.Mutex
	cfg     ThrottleConstraints
	clock   Clock
	logger  *logging.Logger
	clients map[string]*validatorClientState
	metrics map[string]ValidationCounters
}

// NewValidator builds a validator with the supplied constraints and logger.
func NewValidator(cfg ThrottleConstraints, logger *logging.Logger, opts ...ValidatorOption) *Validator {
	if cfg.Min == 0 && cfg.Max == 0 {
		cfg.Min = DefaultThrottleConstraints.Min
		cfg.Max = DefaultThrottleConstraints.Max
	}
	if cfg.InvalidBurstLimit <= 0 {
		cfg.InvalidBurstLimit = DefaultThrottleConstraints.InvalidBurstLimit
	}
	if cfg.InvalidBurstWindow <= 0 {
		cfg.InvalidBurstWindow = DefaultThrottleConstraints.InvalidBurstWindow
	}
	if cfg.CooldownDuration <= 0 {
		cfg.CooldownDuration = DefaultThrottleConstraints.CooldownDuration
	}
	if cfg.MaxCooldownStrikes <= 0 {
		cfg.MaxCooldownStrikes = DefaultThrottleConstraints.MaxCooldownStrikes
	}
	validator := &Validator{
		cfg:     cfg,
		clock:   systemClock{},
		logger:  logger,
		clients: make(map[string]*validatorClientState),
		metrics: make(map[string]ValidationCounters),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	return validator
}

// Validate checks the supplied throttle and records any violations.
func (v *Validator) Validate(clientID string, throttle int32) ValidationDecision {
	if v == nil {
		return ValidationDecision{Accepted: true}
	}
	now := v.clock.Now()

	v.mu.Lock()
	defer v.mu.Unlock()

	state := v.ensureStateLocked(clientID)

	if !state.cooldownUntil.IsZero() && now.Before(state.cooldownUntil) {
		remaining := state.cooldownUntil.Sub(now)
		return ValidationDecision{Accepted: false, Reason: ValidationReasonCooldownActive, Cooldown: remaining}
	}

	if throttle < v.cfg.Min || throttle > v.cfg.Max {
		details := fmt.Sprintf("throttle %d outside [%d, %d]", throttle, v.cfg.Min, v.cfg.Max)
		return v.registerViolationLocked(clientID, state, now, ValidationReasonThrottleRange, details)
	}
	if v.cfg.MaxDelta > 0 && state.hasLast {
		delta := throttle - state.lastThrottle
		if delta < 0 {
			delta = -delta
		}
		if delta > v.cfg.MaxDelta {
			details := fmt.Sprintf("throttle jumped %d, limit %d", delta, v.cfg.MaxDelta)
			return v.registerViolationLocked(clientID, state, now, ValidationReasonThrottleDelta, details)
		}
	}

	return ValidationDecision{Accepted: true}
}

// Commit marks the supplied throttle as accepted, resetting invalid counters.
func (v *Validator) Commit(clientID string, throttle int32) {
	if v == nil {
		return
	}
	v.mu.Lock()
	state := v.ensureStateLocked(clientID)
	state.lastThrottle = throttle
	state.hasLast = true
	state.invalidCount = 0
	state.firstInvalid = time.Time{}
	v.mu.Unlock()
}

// Forget clears all state for the specified client.
func (v *Validator) Forget(clientID string) {
	if v == nil || clientID == "" {
		return
	}
	v.mu.Lock()
	delete(v.clients, clientID)
	delete(v.metrics, clientID)
	v.mu.Unlock()
}

// Metrics returns a snapshot of per-client counters for diagnostics.
func (v *Validator) Metrics() map[string]ValidationCounters {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.metrics) == 0 {
		return nil
	}
	clone := make(map[string]ValidationCounters, len(v.metrics))
	for clientID, counters := range v.metrics {
		copied := ValidationCounters{Cooldowns: counters.Cooldowns, Disconnects: counters.Disconnects}
		if len(counters.Violations) > 0 {
			copied.Violations = make(map[ValidationReason]uint64, len(counters.Violations))
			for reason, count := range counters.Violations {
				copied.Violations[reason] = count
			}
		}
		clone[clientID] = copied
	}
	return clone
}

func (v *Validator) ensureStateLocked(clientID string) *validatorClientState {
	state := v.clients[clientID]
	if state == nil {
		state = &validatorClientState{}
		v.clients[clientID] = state
	}
	return state
}

// registerViolationLocked counts the violation and escalates to cooldowns and
// eventually a disconnect when a client keeps sending invalid throttles.
func (v *Validator) registerViolationLocked(clientID string, state *validatorClientState, now time.Time, reason ValidationReason, details string) ValidationDecision {
	counters := v.metrics[clientID]
	if counters.Violations == nil {
		counters.Violations = make(map[ValidationReason]uint64)
	}
	counters.Violations[reason]++

	if state.firstInvalid.IsZero() || now.Sub(state.firstInvalid) > v.cfg.InvalidBurstWindow {
		state.firstInvalid = now
		state.invalidCount = 0
	}
	state.invalidCount++

	decision := ValidationDecision{Accepted: false, Reason: reason, Details: details}
	if state.invalidCount >= v.cfg.InvalidBurstLimit {
		state.cooldownUntil = now.Add(v.cfg.CooldownDuration)
		state.invalidCount = 0
		state.firstInvalid = time.Time{}
		state.strikes++
		counters.Cooldowns++
		decision.Cooldown = v.cfg.CooldownDuration
		if state.strikes >= v.cfg.MaxCooldownStrikes {
			counters.Disconnects++
			decision.Disconnect = true
		}
	}
	v.metrics[clientID] = counters

	if v.logger != nil {
		v.logger.Warn("throttle rejected",
			logging.String("client_id", clientID),
			logging.String("reason", string(reason)),
			logging.String("details", details),
			logging.Bool("disconnect", decision.Disconnect))
	}
	return decision
}
