package services

import (
	"context"
	"errors"
	"time"

	"subscription-sync/pkg/logging"

	"github.com/sethvargo/go-retry"
)

// RetryingNotifier retries a RemoteNotifier with capped exponential backoff and jitter.
type RetryingNotifier struct {
	next            RemoteNotifier
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewRetryingNotifier wraps next. maxRetries counts retries after the first attempt.
func NewRetryingNotifier(next RemoteNotifier, maxRetries int, initialInterval time.Duration) *RetryingNotifier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initialInterval <= 0 {
		initialInterval = time.Second
	}
	return &RetryingNotifier{
		next:            next,
		maxRetries:      uint64(maxRetries),
		initialInterval: initialInterval,
		maxInterval:     30 * time.Second,
	}
}

func (rn *RetryingNotifier) backoff() retry.Backoff {
	b := retry.NewExponential(rn.initialInterval)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithCappedDuration(rn.maxInterval, b)
	return retry.WithMaxRetries(rn.maxRetries, b)
}

// UpdateIsSubscribed calls the wrapped notifier until it succeeds, gives up, or ctx ends.
func (rn *RetryingNotifier) UpdateIsSubscribed(ctx context.Context, userID string, isSubscribed bool) (string, error) {
	var message string
	attempt := 0

	err := retry.Do(ctx, rn.backoff(), func(ctx context.Context) error {
		attempt++
		msg, err := rn.next.UpdateIsSubscribed(ctx, userID, isSubscribed)
		if err == nil {
			message = msg
			return nil
		}

		var statusErr *webhookStatusError
		if errors.As(err, &statusErr) && statusErr.permanent() {
			return err
		}

		logging.Warnf("Remote notify attempt failed - user: %s, attempt: %d, error: %v", userID, attempt, err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return "", err
	}
	return message, nil
}
