package services

import (
	"sync"
	"time"
)

// RiskLevel buckets a risk score for routing decisions.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

const (
	riskThresholdMedium   = 0.5
	riskThresholdHigh     = 0.7
	riskThresholdCritical = 0.9

	cardVelocityWindow   = 10 * time.Minute
	failedAttemptsWindow = time.Hour
)

// Amounts fraudsters favor when testing stolen cards, in minor units
// ($1, $5, $10, $20).
var cardTestingAmounts = map[int64]struct{}{100: {}, 500: {}, 1000: {}, 2000: {}}

// RiskSignal is one rule's contribution to the overall score.
type RiskSignal struct {
	Type   string
	Score  float64
	Reason string
}

// RiskAssessment is the rule-based verdict for one authorization
// attempt. Critical assessments decline without asking the bank.
type RiskAssessment struct {
	Score   float64
	Level   RiskLevel
	Signals []RiskSignal
}

// Reasons flattens the active signal reasons for logging.
func (a RiskAssessment) Reasons() []string {
	reasons := make([]string, 0, len(a.Signals))
	for _, s := range a.Signals {
		reasons = append(reasons, s.Reason)
	}
	return reasons
}

// FraudDetector runs rule-based checks over per-card attempt velocity
// and amount patterns. State is in-process sliding windows; a
// multi-node deployment would back the counters with a shared store.
type FraudDetector struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	failures map[string][]time.Time
	now      clock
}

func NewFraudDetector() *FraudDetector {
	return &FraudDetector{
		attempts: make(map[string][]time.Time),
		failures: make(map[string][]time.Time),
		now:      systemClock,
	}
}

// RecordAttempt feeds the velocity windows with a finished attempt.
func (d *FraudDetector) RecordAttempt(fingerprint string, succeeded bool) {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts[fingerprint] = appendPruned(d.attempts[fingerprint], now, cardVelocityWindow)
	if !succeeded {
		d.failures[fingerprint] = appendPruned(d.failures[fingerprint], now, failedAttemptsWindow)
	}
}

// Assess scores one attempt before it reaches the bank.
func (d *FraudDetector) Assess(fingerprint string, amountCents int64) RiskAssessment {
	now := d.now()
	d.mu.Lock()
	attempts := countInWindow(d.attempts[fingerprint], now, cardVelocityWindow)
	failures := countInWindow(d.failures[fingerprint], now, failedAttemptsWindow)
	d.mu.Unlock()

	signals := make([]RiskSignal, 0, 3)
	if signal := checkCardVelocity(attempts); signal.Score > 0 {
		signals = append(signals, signal)
	}
	if signal := checkFailedAttempts(failures); signal.Score > 0 {
		signals = append(signals, signal)
	}
	if signal := checkAmount(amountCents); signal.Score > 0 {
		signals = append(signals, signal)
	}

	score := blendScore(signals)
	return RiskAssessment{
		Score:   score,
		Level:   levelFor(score),
		Signals: signals,
	}
}

func checkCardVelocity(count int) RiskSignal {
	switch {
	case count > 5:
		return RiskSignal{Type: "velocity_card", Score: 0.95,
			Reason: "card attempted more than 5 times in 10 minutes"}
	case count > 3:
		return RiskSignal{Type: "velocity_card", Score: 0.7,
			Reason: "card attempted more than 3 times in 10 minutes"}
	}
	return RiskSignal{Type: "velocity_card"}
}

func checkFailedAttempts(count int) RiskSignal {
	switch {
	case count > 10:
		return RiskSignal{Type: "failed_attempts", Score: 0.9,
			Reason: "more than 10 failed attempts on card in 1 hour"}
	case count > 5:
		return RiskSignal{Type: "failed_attempts", Score: 0.5,
			Reason: "more than 5 failed attempts on card in 1 hour"}
	}
	return RiskSignal{Type: "failed_attempts"}
}

func checkAmount(amountCents int64) RiskSignal {
	if _, ok := cardTestingAmounts[amountCents]; ok {
		return RiskSignal{Type: "card_testing_amount", Score: 0.3,
			Reason: "common card-testing amount"}
	}
	if amountCents > 500_000 {
		return RiskSignal{Type: "high_amount", Score: 0.4,
			Reason: "high value transaction"}
	}
	return RiskSignal{Type: "amount"}
}

// blendScore mixes the average with the maximum, weighting the maximum
// so a single strong signal dominates several weak ones.
func blendScore(signals []RiskSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var total, peak float64
	for _, s := range signals {
		total += s.Score
		if s.Score > peak {
			peak = s.Score
		}
	}
	score := (total/float64(len(signals)))*0.3 + peak*0.7
	if score > 1 {
		return 1
	}
	return score
}

func levelFor(score float64) RiskLevel {
	switch {
	case score >= riskThresholdCritical:
		return RiskCritical
	case score >= riskThresholdHigh:
		return RiskHigh
	case score >= riskThresholdMedium:
		return RiskMedium
	}
	return RiskLow
}

func appendPruned(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return append(kept, now)
}

func countInWindow(stamps []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	count := 0
	for _, ts := range stamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}
