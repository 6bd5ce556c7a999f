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

package pipeline

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Backoff is an exponential retry schedule.
type Backoff struct {
	// Attempts is the total number of calls, including the first.
	Attempts int
	// Delay is the first wait. It doubles after every failed attempt.
	Delay time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
}

func (b Backoff) wait(attempt int) time.Duration {
	d := b.Delay
	for i := 1; i < attempt && d < math.MaxInt64/2; i++ {
		d *= 2
		if b.MaxDelay > 0 && d >= b.MaxDelay {
			break
		}
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

// RetryWithBackoff calls op until it succeeds, fails with an error that
// retryable rejects, or b.Attempts calls have failed. A nil retryable
// retries every error. The last error is returned.
func RetryWithBackoff(ctx context.Context, b Backoff, retryable func(error) bool, op func() error) error {
	if b.Attempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(); err == nil {
			if attempt > 1 {
				slog.Debug("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == b.Attempts || (retryable != nil && !retryable(err)) {
			return err
		}
		slog.Debug("attempt failed", "attempt", attempt, "attempts", b.Attempts, "err", err)

		timer := time.NewTimer(b.wait(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
