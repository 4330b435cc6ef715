package aiextract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	apperrors "github.com/chravel/chravel-import/internal/errors"
)

// RemoteConfig configures the hosted extraction function
type RemoteConfig struct {
	Endpoint        string
	APIKey          string
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// RemoteService posts requests to a hosted extraction function. A circuit
// breaker stops hammering the function while it is failing.
type RemoteService struct {
	cfg     RemoteConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*Response]
	logger  *zap.Logger
}

// NewRemoteService creates a remote service. Request deadlines come from
// the caller's context.
func NewRemoteService(cfg RemoteConfig, logger *zap.Logger) *RemoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:    "extraction-service",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A malformed payload means the function answered; it is not down.
		IsSuccessful: func(err error) bool {
			return err == nil || apperrors.GetCode(err) == apperrors.CodeInvalidResponse
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Extraction service breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &RemoteService{
		cfg:     cfg,
		client:  &http.Client{},
		breaker: breaker,
		logger:  logger,
	}
}

// Invoke posts req as JSON and decodes the validated response
func (s *RemoteService) Invoke(ctx context.Context, req Request) (*Response, error) {
	resp, err := s.breaker.Execute(func() (*Response, error) {
		return s.post(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("extraction service unavailable: %w", err)
	}
	return resp, err
}

// State reports the breaker state for health output
func (s *RemoteService) State() string {
	return s.breaker.State().String()
}

func (s *RemoteService) post(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		httpReq.Header.Set("apikey", s.cfg.APIKey)
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call extraction service: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		// Functions report their own failures as {"error": "..."}.
		var fail struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &fail) == nil && fail.Error != "" {
			return nil, errors.New(fail.Error)
		}
		return nil, fmt.Errorf("extraction service returned status %d", httpResp.StatusCode)
	}

	return DecodeResponse(data)
}
