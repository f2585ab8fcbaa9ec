package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTargetRTT is the response time an adaptive Pacer aims for.
	DefaultTargetRTT = 500 * time.Millisecond

	// maxPaceInterval caps how far an adaptive Pacer can widen the interval.
	maxPaceInterval = 10 * time.Second

	// minWidenStep is the first widened interval when pacing starts at zero.
	minWidenStep = 10 * time.Millisecond

	// emaAlpha is the smoothing factor for Exponential Moving Average.
	// 0.2 means ~20% weight to new observation, ~80% to historical average.
	emaAlpha = 0.2

	// recoveryFactor shrinks the interval by 10% per good RTT observation.
	recoveryFactor = 1.1

	// backoffFactor limits how much the interval can grow in a single step.
	backoffFactor = 2.0
)

// Pacer enforces a minimum wall-clock gap between successive dispatches.
// It wraps a token bucket with burst 1, so at most one dispatch is released
// per interval however many goroutines wait.
//
// An adaptive Pacer tracks an Exponential Moving Average of response times
// and widens the interval while the server answers slower than the target.
// It never narrows below the configured minimum.
type Pacer struct {
	limiter     *rate.Limiter
	minInterval time.Duration
	targetRTT   time.Duration
	adaptive    bool

	mu       sync.RWMutex
	interval time.Duration
	emaRTT   time.Duration
}

// NewPacer creates a fixed Pacer. A zero interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	interval = max(interval, 0)
	return &Pacer{
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		minInterval: interval,
		interval:    interval,
	}
}

// NewAdaptivePacer creates a Pacer that starts at interval and widens it
// while the smoothed response time exceeds targetRTT.
func NewAdaptivePacer(interval, targetRTT time.Duration) *Pacer {
	p := NewPacer(interval)
	if targetRTT <= 0 {
		targetRTT = DefaultTargetRTT
	}
	p.adaptive = true
	p.targetRTT = targetRTT
	p.emaRTT = targetRTT
	return p
}

// Wait blocks until the next dispatch is allowed or the context is cancelled.
// It is safe to call Wait from multiple goroutines concurrently.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// ObserveRTT records a response time observation. It is a no-op on a fixed
// Pacer.
func (p *Pacer) ObserveRTT(rtt time.Duration) {
	if !p.adaptive {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// new_ema = alpha * new_value + (1 - alpha) * old_ema
	p.emaRTT = time.Duration(emaAlpha*float64(rtt) + (1-emaAlpha)*float64(p.emaRTT))

	var next time.Duration
	if p.emaRTT > p.targetRTT {
		ratio := float64(p.emaRTT) / float64(p.targetRTT)
		base := max(p.interval, minWidenStep)
		next = time.Duration(float64(base) * min(ratio, backoffFactor))
	} else {
		next = time.Duration(float64(p.interval) / recoveryFactor)
	}
	next = min(max(next, p.minInterval), maxPaceInterval)
	// Below the widen step the interval snaps back to the minimum so a
	// recovered server is paced exactly as configured.
	if next < minWidenStep {
		next = p.minInterval
	}

	if next != p.interval {
		p.interval = next
		p.limiter.SetLimit(rate.Every(next))
	}
}

// Interval returns the current gap between dispatches.
func (p *Pacer) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interval
}

// CurrentEMA returns the current EMA of observed RTT values.
func (p *Pacer) CurrentEMA() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.emaRTT
}
