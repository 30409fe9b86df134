package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// IntentAPI is the subset of Stripe payment intent calls the gateway uses.
type IntentAPI interface {
	New(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// RefundAPI is the subset of Stripe refund calls the gateway uses.
type RefundAPI interface {
	New(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeIntents struct{}

func (stripeIntents) New(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	return paymentintent.New(params)
}

func (stripeIntents) Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	return paymentintent.Cancel(id, params)
}

type stripeRefunds struct{}

func (stripeRefunds) New(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	params.Context = ctx
	return refund.New(params)
}

// StripeGateway implements Gateway on Stripe payment intents and refunds.
type StripeGateway struct {
	intents IntentAPI
	refunds RefundAPI
}

// NewStripeGateway binds the gateway to an initialized Stripe client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &StripeGateway{intents: stripeIntents{}, refunds: stripeRefunds{}}, nil
}

// NewStripeGatewayWithAPIs is used by tests to substitute the Stripe calls.
func NewStripeGatewayWithAPIs(intents IntentAPI, refunds RefundAPI) *StripeGateway {
	return &StripeGateway{intents: intents, refunds: refunds}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.intents.New(ctx, params)
	if err != nil {
		return nil, gatewayError(err, "create payment intent")
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
	}, nil
}

// CancelIntent cancels an unpaid intent. Intents Stripe reports as already
// canceled are treated as success.
func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	if strings.TrimSpace(intentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.SetIdempotencyKey("cancel-" + intentID)
	if _, err := g.intents.Cancel(ctx, intentID, params); err != nil {
		if alreadyCanceled(err) {
			return nil
		}
		return gatewayError(err, "cancel payment intent")
	}
	return nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(req.PaymentIntentID)}
	if req.AmountCents != nil {
		if *req.AmountCents <= 0 {
			return nil, pkgerrors.NewWithReason(pkgerrors.CodeValidation, pkgerrors.ReasonZeroRefund, "refund amount must be positive")
		}
		params.Amount = stripe.Int64(*req.AmountCents)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	rf, err := g.refunds.New(ctx, params)
	if err != nil {
		return nil, gatewayError(err, "create refund")
	}
	return &Refund{ID: rf.ID, Status: string(rf.Status), AmountCents: rf.Amount}, nil
}

func gatewayError(err error, msg string) error {
	wrapped := pkgerrors.Wrap(pkgerrors.CodeGateway, err, msg)
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return wrapped.WithDetails(map[string]any{
			"gateway_code": string(stripeErr.Code),
			"gateway_type": string(stripeErr.Type),
		})
	}
	return wrapped
}

func alreadyCanceled(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState &&
		strings.Contains(strings.ToLower(stripeErr.Msg), "canceled")
}
