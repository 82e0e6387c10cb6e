// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = 30 * time.Second

// Errors that another attempt cannot fix.
var permanentErrors = []error{
	ai.ErrEmbeddingCountMismatch,
	ai.ErrEmptyEmbedding,
	storage.ErrDimensionMismatch,
	storage.ErrInvalidQuery,
	storage.ErrStorageClosed,
	core.ErrInvalidIndexEntry,
}

func isPermanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// retryPolicy bounds every embedding and index call of a run.
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	timeout   time.Duration // per attempt; zero disables
	logger    *slog.Logger
}

// backoff returns the wait before attempt n+1: baseDelay * 2^(n-1), capped.
func (p retryPolicy) backoff(n int) time.Duration {
	delay := p.baseDelay
	for i := 1; i < n && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// do runs op until it succeeds, fails permanently, the attempts are used up
// or ctx is done. Each attempt gets its own deadline.
func (p retryPolicy) do(ctx context.Context, what string, op func(ctx context.Context) error) error {
	if p.attempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	logger := p.logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = p.attempt(ctx, op)
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("call succeeded after retry", "call", what, "attempt", attempt)
			}
			return nil
		}
		if isPermanent(lastErr) || attempt == p.attempts {
			break
		}

		logger.Debug("call failed, will retry", "call", what, "attempt", attempt, "max_attempts", p.attempts, "err", lastErr)

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (p retryPolicy) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if p.timeout <= 0 {
		return op(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return op(callCtx)
}
