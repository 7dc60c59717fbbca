package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/logging"
	"github.com/meridian-data/catalog-engine/pkg/models"
)

// backoffSchedule is the wait before each successive re-attempt of a failed
// batch, capping at the last value.
var backoffSchedule = []time.Duration{
	3 * time.Second,
	30 * time.Second,
	5 * time.Minute,
	time.Hour,
	24 * time.Hour,
}

// StatusSink persists subscription state-machine transitions.
// repositories.SubscriptionRepository satisfies it.
type StatusSink interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus, details *models.FailureDetails) error
}

// Publisher drives the delivery state machine for one subscription. It is
// owned by a single consumer goroutine; no internal locking.
//
// Outcome classes per attempt:
//   - 2xx: success, batch acknowledged, subscription ACTIVE.
//   - 3xx or DNS resolution failure: terminal misconfiguration, subscription
//     FAILED, no retry.
//   - 4xx, 5xx, timeout, connection error: retryable, subscription
//     AWAITING_RETRY, same batch re-attempted after backoff until the retry
//     ceiling moves it to RETRY_LIMIT_REACHED.
type Publisher struct {
	sub        *models.EventSubscription
	transport  Transport
	sink       StatusSink
	maxRetries int
	logger     *zap.Logger

	// attempts counts consecutive failures on the current batch; reset on
	// success.
	attempts int
	details  models.FailureDetails
}

// NewPublisher creates a publisher for one subscription. maxRetries is the
// retryable-failure ceiling before the subscription halts.
func NewPublisher(sub *models.EventSubscription, transport Transport, sink StatusSink, maxRetries int, logger *zap.Logger) *Publisher {
	p := &Publisher{
		sub:        sub,
		transport:  transport,
		sink:       sink,
		maxRetries: maxRetries,
		logger: logger.Named("publisher").With(
			zap.String("subscription_id", sub.ID.String()),
			zap.String("endpoint", logging.SanitizeEndpoint(sub.Endpoint))),
	}
	if sub.FailureDetails != nil {
		p.details = *sub.FailureDetails
	}
	return p
}

// Deliver attempts the batch until a terminal outcome: nil on acknowledged
// delivery, ErrDeliveryTerminal on a redirect or unresolvable host,
// ErrRetryLimitReached once the ceiling is hit, or the context error if the
// consumer is stopped mid-backoff. The batch is never dropped on failure.
func (p *Publisher) Deliver(ctx context.Context, batch []models.ChangeEvent) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode event batch: %w", err)
	}
	signature := Sign(p.sub.SecretKey, payload)

	for {
		code, sendErr := p.transport.Send(ctx, p.sub.Endpoint, payload, signature)

		switch {
		case sendErr == nil && code >= 200 && code < 300:
			p.attempts = 0
			p.details.LastSuccessfulAt = time.Now().UnixMilli()
			p.details.NextAttempt = 0
			if err := p.transition(ctx, models.StatusActive); err != nil {
				p.logger.Warn("Failed to persist subscription status", zap.Error(err))
			}
			p.logger.Debug("Delivered event batch", zap.Int("events", len(batch)))
			return nil

		case isTerminal(code, sendErr):
			p.recordFailure(code, sendErr)
			p.details.NextAttempt = 0
			if err := p.transition(ctx, models.StatusFailed); err != nil {
				p.logger.Warn("Failed to persist subscription status", zap.Error(err))
			}
			p.logger.Error("Terminal delivery failure, disabling subscription",
				zap.Int("status_code", code),
				zap.String("reason", p.details.LastFailedReason))
			return fmt.Errorf("subscription %s: %w", p.sub.ID, apperrors.ErrDeliveryTerminal)

		default:
			p.attempts++
			p.recordFailure(code, sendErr)

			if p.attempts > p.maxRetries {
				p.details.NextAttempt = 0
				if err := p.transition(ctx, models.StatusRetryLimitReached); err != nil {
					p.logger.Warn("Failed to persist subscription status", zap.Error(err))
				}
				p.logger.Error("Retry ceiling reached, halting delivery",
					zap.Int("attempts", p.attempts))
				return fmt.Errorf("subscription %s after %d attempts: %w",
					p.sub.ID, p.attempts, apperrors.ErrRetryLimitReached)
			}

			backoff := backoffFor(p.attempts)
			p.details.NextAttempt = time.Now().Add(backoff).UnixMilli()
			if err := p.transition(ctx, models.StatusAwaitingRetry); err != nil {
				p.logger.Warn("Failed to persist subscription status", zap.Error(err))
			}
			p.logger.Warn("Delivery failed, backing off",
				zap.Int("status_code", code),
				zap.Int("attempt", p.attempts),
				zap.Duration("backoff", backoff))

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func (p *Publisher) transition(ctx context.Context, status models.SubscriptionStatus) error {
	p.sub.Status = status
	details := p.details
	p.sub.FailureDetails = &details
	if p.sink == nil {
		return nil
	}
	return p.sink.UpdateStatus(ctx, p.sub.ID, status, &details)
}

func (p *Publisher) recordFailure(code int, err error) {
	p.details.LastFailedAt = time.Now().UnixMilli()
	p.details.LastFailedStatusCode = code
	if err != nil {
		p.details.LastFailedReason = logging.SanitizeError(err)
	} else {
		p.details.LastFailedReason = fmt.Sprintf("endpoint returned %d", code)
	}
}

// isTerminal classifies outcomes that no amount of retrying can fix: a
// redirect means the endpoint moved, an unresolvable host means it never
// existed.
func isTerminal(code int, err error) bool {
	if err != nil {
		var dnsErr *net.DNSError
		return errors.As(err, &dnsErr)
	}
	return code >= 300 && code < 400
}

func backoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return backoffSchedule[idx]
}
