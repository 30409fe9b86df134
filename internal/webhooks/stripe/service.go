package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type reconciler interface {
	ConfirmPayment(ctx context.Context, event reconcile.Event, pc reconcile.PaymentConfirmation) (reconcile.Outcome, error)
	FinalizeRefund(ctx context.Context, event reconcile.Event, notice reconcile.RefundNotice) (reconcile.Outcome, error)
}

type ServiceParams struct {
	Reconciler reconciler
}

// Service decodes verified Stripe events and hands them to the reconciler.
type Service struct {
	reconciler reconciler
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	return &Service{reconciler: params.Reconciler}, nil
}

// HandleEvent routes an event by type. Types the storefront does not act on
// are acknowledged as ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (reconcile.Outcome, error) {
	if event == nil || event.Data == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ref := reconcile.Event{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.reconciler.ConfirmPayment(ctx, ref, confirmationFrom(&pi))
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		notice, err := refundNoticeFrom(&charge)
		if err != nil {
			return "", err
		}
		return s.reconciler.FinalizeRefund(ctx, ref, notice)
	default:
		return reconcile.OutcomeIgnored, nil
	}
}

func confirmationFrom(pi *stripe.PaymentIntent) reconcile.PaymentConfirmation {
	pc := reconcile.PaymentConfirmation{
		PaymentIntentID: pi.ID,
		AmountCents:     pi.AmountReceived,
	}
	if pc.AmountCents == 0 {
		pc.AmountCents = pi.Amount
	}
	if raw, ok := pi.Metadata[payments.MetadataOrderID]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			pc.OrderID = id
		}
	}
	return pc
}

func refundNoticeFrom(charge *stripe.Charge) (reconcile.RefundNotice, error) {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return reconcile.RefundNotice{}, pkgerrors.New(pkgerrors.CodeValidation, "charge has no payment intent")
	}
	return reconcile.RefundNotice{
		PaymentIntentID:     charge.PaymentIntent.ID,
		AmountRefundedCents: charge.AmountRefunded,
		ChargeAmountCents:   charge.Amount,
		FullyRefunded:       charge.Refunded,
	}, nil
}
