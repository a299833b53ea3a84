// Package notify delivers announcements to chat-webhook targets with a
// bounded retry schedule. Targets are tried strictly one after another to
// stay under the rate limits of the downstream chat systems.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"uniherald/internal/domain"
)

type Dispatcher struct {
	client      *http.Client
	policy      Policy
	targetPause time.Duration
	log         *slog.Logger
}

func NewDispatcher(policy Policy, log *slog.Logger) *Dispatcher {
	// Per-attempt deadlines come from the policy via context, so the
	// client itself carries no timeout.
	return &Dispatcher{
		client:      &http.Client{},
		policy:      policy,
		targetPause: defaultTargetPause,
		log:         log,
	}
}

// Deliver attempts delivery of one announcement to every target in order.
// It always returns the full outcome list; partial failure is expressed
// through the outcomes, never as an error.
func (d *Dispatcher) Deliver(
	ctx context.Context,
	ann domain.Announcement,
	targets []domain.Target,
) []domain.DeliveryOutcome {
	outcomes := make([]domain.DeliveryOutcome, 0, len(targets))

	for i, target := range targets {
		outcomes = append(outcomes, d.deliverTarget(ctx, ann, target))

		if i < len(targets)-1 {
			sleep(ctx, d.targetPause)
		}
	}

	return outcomes
}

func (d *Dispatcher) deliverTarget(
	ctx context.Context,
	ann domain.Announcement,
	target domain.Target,
) domain.DeliveryOutcome {
	var lastErr error

	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		timeout, backoff := d.policy.Plan(attempt)

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := d.post(attemptCtx, ann, target)
		cancel()

		if err == nil {
			d.log.InfoContext(ctx, "Announcement is delivered",
				"announcementID", ann.ID,
				"title", ann.Title,
				"target", target.Name,
				"attempt", attempt)

			return domain.DeliveryOutcome{Target: target.Name, Success: true}
		}

		lastErr = err
		d.log.WarnContext(ctx, "Delivery attempt failed",
			"error", err,
			"announcementID", ann.ID,
			"title", ann.Title,
			"target", target.Name,
			"endpoint", target.Redacted(),
			"attempt", attempt,
			"maxAttempts", d.policy.MaxAttempts)

		if backoff > 0 {
			sleep(ctx, backoff)
		}
	}

	return domain.DeliveryOutcome{
		Target:  target.Name,
		Success: false,
		Err:     lastErr.Error(),
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
