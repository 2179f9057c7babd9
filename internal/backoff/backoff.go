// Package backoff computes retry delays for the dispatcher's retry engine.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy computes the delay before retry attempt n (0-based).
type Strategy interface {
	Delay(attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration
}

// Exponential grows the delay by multiplier per attempt and adds up to
// jitter*delay of random slack, capped at max.
type Exponential struct{}

func (Exponential) Delay(attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Exponent cap keeps the float math from overflowing time.Duration.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if delay < 0 || delay > max {
		delay = max
	}

	jitter = clamp01(jitter)
	if jitter > 0 {
		slack := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+slack > max {
			delay = max
		} else {
			delay += slack
		}
	}
	return delay
}

// Decorrelated implements AWS-style decorrelated jitter:
// random_between(initial, min(max, initial*3^attempt)).
type Decorrelated struct{}

func (Decorrelated) Delay(attempt int, initial, max time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return initial
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initial)
	upper := base * math.Pow(3.0, float64(attempt))
	if upper > float64(max) || upper < 0 {
		upper = float64(max)
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
