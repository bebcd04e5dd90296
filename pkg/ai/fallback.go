package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
)

// FallbackService tries each provider in order and moves to the next one when
// a provider is unreachable or out of quota. Other errors also fall through,
// but are logged as warnings rather than debug noise.
type FallbackService struct {
	providers []Completer
	log       *zap.Logger
}

// NewFallbackService creates a router over providers; nil entries are skipped.
func NewFallbackService(log *zap.Logger, providers ...Completer) *FallbackService {
	var list []Completer
	for _, p := range providers {
		if p != nil {
			list = append(list, p)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FallbackService{providers: list, log: log.Named("ai")}
}

func (f *FallbackService) Name() string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

// Complete returns the first successful provider answer.
func (f *FallbackService) Complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	if len(f.providers) == 0 {
		return "", ErrNoProvider
	}

	var errs []error
	for _, p := range f.providers {
		out, err := p.Complete(ctx, system, prompt, jsonMode)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))

		switch {
		case isConnectionError(err):
			f.log.Info("provider unreachable, trying next", zap.String("provider", p.Name()), zap.Error(err))
		case isQuotaError(err):
			f.log.Info("provider quota exhausted, trying next", zap.String("provider", p.Name()), zap.Error(err))
		default:
			f.log.Warn("provider failed, trying next", zap.String("provider", p.Name()), zap.Error(err))
		}
	}
	return "", errors.Join(errs...)
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return containsAny(err.Error(),
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	)
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(),
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
		"resource_exhausted",
	)
}

func containsAny(s string, indicators ...string) bool {
	s = strings.ToLower(s)
	for _, indicator := range indicators {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}
