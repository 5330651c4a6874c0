package api

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterPool manages per-model and per-provider rate limiters. A request
// must pass both its model limiter and, when configured, its provider limiter
// before going out.
type RateLimiterPool struct {
	modelLimiters    map[string]*rate.Limiter
	providerLimiters map[string]*rate.Limiter
	rates            map[string]int // original RPM per key, for consistency checks
	mu               sync.Mutex
}

// NewRateLimiterPool creates a new rate limiter pool
func NewRateLimiterPool() *RateLimiterPool {
	return &RateLimiterPool{
		modelLimiters:    make(map[string]*rate.Limiter),
		providerLimiters: make(map[string]*rate.Limiter),
		rates:            make(map[string]int),
	}
}

// Wait blocks until both the model limiter and (if providerRPM > 0) the
// provider limiter allow the next request.
func (p *RateLimiterPool) Wait(ctx context.Context, modelID string, modelRPM int, providerName string, providerRPM int, burstPercent int) error {
	modelLimiter := p.getOrCreate(p.modelLimiters, "model:"+modelID, modelRPM, burstPercent)

	var providerLimiter *rate.Limiter
	if providerRPM > 0 {
		providerLimiter = p.getOrCreate(p.providerLimiters, "provider:"+providerName, providerRPM, burstPercent)
	}

	// Provider limiter first: it is the broader constraint and waiting on it
	// should not consume a model token
	if providerLimiter != nil {
		if err := providerLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	return modelLimiter.Wait(ctx)
}

func (p *RateLimiterPool) getOrCreate(limiters map[string]*rate.Limiter, key string, rpm int, burstPercent int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, exists := limiters[key]; exists {
		if existingRate, ok := p.rates[key]; ok && existingRate != rpm {
			slog.Warn("Rate limiter already exists with different rate, keeping existing rate",
				"key", key,
				"existing_rpm", existingRate,
				"requested_rpm", rpm)
		}
		return limiter
	}

	if burstPercent < 1 {
		burstPercent = 15
	}
	rps := float64(rpm) / 60.0
	burst := rpm * burstPercent / 100
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	limiters[key] = limiter
	p.rates[key] = rpm

	slog.Debug("Created rate limiter",
		"key", key,
		"rpm", rpm,
		"rps", rps,
		"burst", burst)

	return limiter
}
