// Package llm provides an OpenAI-compatible chat client with multi-provider
// failover
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Completer is anything that can answer a chat completion request
type Completer interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ProviderManager tries providers in priority order. Each provider sits
// behind its own circuit breaker so a failing one is skipped until its
// cooldown expires.
type ProviderManager struct {
	providers []*managedProvider
	mu        sync.RWMutex
	logger    *zap.Logger
	cooldown  time.Duration
	failures  uint32
}

type managedProvider struct {
	name     string
	client   Completer
	priority int
	breaker  *gobreaker.CircuitBreaker[*ChatResponse]
	lastUsed time.Time
}

// ProviderStatus describes a provider for diagnostics
type ProviderStatus struct {
	Name     string    `json:"name"`
	Priority int       `json:"priority"`
	State    string    `json:"state"`
	LastUsed time.Time `json:"lastUsed"`
}

// NewProviderManager creates a new provider manager. A provider's breaker
// opens after failures consecutive errors and half-opens after cooldown.
func NewProviderManager(logger *zap.Logger, failures uint32, cooldown time.Duration) *ProviderManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if failures == 0 {
		failures = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &ProviderManager{logger: logger, failures: failures, cooldown: cooldown}
}

// AddProvider registers a provider. Lower priority values are tried first.
func (pm *ProviderManager) AddProvider(name string, client Completer, priority int) {
	failures := pm.failures
	logger := pm.logger

	breaker := gobreaker.NewCircuitBreaker[*ChatResponse](gobreaker.Settings{
		Name:    "llm-" + name,
		Timeout: pm.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("LLM provider breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.providers = append(pm.providers, &managedProvider{
		name:     name,
		client:   client,
		priority: priority,
		breaker:  breaker,
	})
	sort.SliceStable(pm.providers, func(i, j int) bool {
		return pm.providers[i].priority < pm.providers[j].priority
	})
}

// ChatCompletion sends a request with automatic failover
func (pm *ProviderManager) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	pm.mu.RLock()
	providers := append([]*managedProvider(nil), pm.providers...)
	pm.mu.RUnlock()

	if len(providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	var lastErr error
	for i, p := range providers {
		resp, err := p.breaker.Execute(func() (*ChatResponse, error) {
			return p.client.ChatCompletion(ctx, req)
		})
		if err == nil {
			pm.mu.Lock()
			p.lastUsed = time.Now()
			pm.mu.Unlock()

			if i > 0 {
				pm.logger.Info("Failover successful",
					zap.String("provider", p.name),
					zap.Int("attempt", i+1),
				)
			}
			return resp, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			pm.logger.Debug("Skipping provider with open breaker", zap.String("provider", p.name))
			continue
		}
		pm.logger.Warn("Provider failed, trying next",
			zap.String("provider", p.name),
			zap.Error(err),
		)
	}

	return nil, fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// Status returns the state of every provider
func (pm *ProviderManager) Status() []ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	status := make([]ProviderStatus, 0, len(pm.providers))
	for _, p := range pm.providers {
		status = append(status, ProviderStatus{
			Name:     p.name,
			Priority: p.priority,
			State:    p.breaker.State().String(),
			LastUsed: p.lastUsed,
		})
	}
	return status
}
