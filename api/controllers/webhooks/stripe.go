package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 16

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (reconcile.Outcome, error)
}

type StripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
	Processing(ctx context.Context, eventID string) (bool, error)
}

type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

type WebhookObserver interface {
	ObserveEvent(eventType, outcome string)
}

// StripeWebhook verifies and reconciles payment gateway events.
func StripeWebhook(svc StripeWebhookService, verifier EventVerifier, guard StripeWebhookGuard, observer WebhookObserver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				observe(observer, "unknown", "too_large")
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeTooLarge, "webhook body too large").
					WithDetails(map[string]any{"limit_bytes": tooLarge.Limit}))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			observe(observer, "unknown", "invalid_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "stripe signature missing"))
			return
		}

		event, err := verifier.VerifyEvent(payload, sigHeader)
		if err != nil {
			observe(observer, "unknown", "invalid_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify signature"))
			return
		}

		eventType := string(event.Type)
		if logg != nil {
			ctx = logg.WithEvent(ctx, event.ID, eventType)
		}

		claimed, err := guard.Claim(ctx, event.ID)
		if err != nil {
			observe(observer, eventType, "error")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event"))
			return
		}
		if !claimed {
			processing, err := guard.Processing(ctx, event.ID)
			if err != nil {
				observe(observer, eventType, "error")
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inspect webhook event"))
				return
			}
			if processing {
				// another delivery holds the lease; ask the gateway to retry later
				observe(observer, eventType, "in_flight")
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event is being processed"))
				return
			}
			observe(observer, eventType, string(reconcile.OutcomeDuplicate))
			responses.WriteSuccess(w, map[string]string{"outcome": string(reconcile.OutcomeDuplicate)})
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if releaseErr := guard.Release(ctx, event.ID); releaseErr != nil && logg != nil {
				logg.Warn(ctx, "release webhook claim failed: "+releaseErr.Error())
			}
			observe(observer, eventType, "error")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := guard.Complete(ctx, event.ID); err != nil && logg != nil {
			logg.Warn(ctx, "complete webhook claim failed: "+err.Error())
		}
		observe(observer, eventType, string(outcome))
		if logg != nil {
			logg.Info(ctx, "stripe webhook processed: "+string(outcome))
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}

func observe(observer WebhookObserver, eventType, outcome string) {
	if observer == nil {
		return
	}
	observer.ObserveEvent(eventType, outcome)
}
