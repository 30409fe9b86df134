package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubIntents struct {
	created  *stripe.PaymentIntentParams
	canceled string
	err      error
}

func (s *stubIntents) New(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.created = params
	if s.err != nil {
		return nil, s.err
	}
	return &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret_abc",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		Amount:       *params.Amount,
	}, nil
}

func (s *stubIntents) Cancel(_ context.Context, id string, _ *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	s.canceled = id
	if s.err != nil {
		return nil, s.err
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
}

type stubRefunds struct {
	params *stripe.RefundParams
	err    error
}

func (s *stubRefunds) New(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	var amount int64
	if params.Amount != nil {
		amount = *params.Amount
	}
	return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusPending, Amount: amount}, nil
}

func TestCreateIntentBuildsParams(t *testing.T) {
	intents := &stubIntents{}
	gw := NewStripeGatewayWithAPIs(intents, &stubRefunds{})

	intent, err := gw.CreateIntent(context.Background(), IntentRequest{
		AmountCents:    9000,
		Currency:       "USD",
		Metadata:       map[string]string{MetadataOrderID: "o-1", MetadataUserID: "u-1"},
		IdempotencyKey: "o-1",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_123", intent.ID)
	require.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	require.EqualValues(t, 9000, intent.AmountCents)

	require.Equal(t, "usd", *intents.created.Currency)
	require.True(t, *intents.created.AutomaticPaymentMethods.Enabled)
	require.Equal(t, "o-1", intents.created.Metadata[MetadataOrderID])
	require.Equal(t, "o-1", *intents.created.IdempotencyKey)
}

func TestCreateIntentMapsFailures(t *testing.T) {
	gw := NewStripeGatewayWithAPIs(&stubIntents{err: &stripe.Error{Code: stripe.ErrorCodeAPIKeyExpired, Msg: "expired"}}, &stubRefunds{})
	_, err := gw.CreateIntent(context.Background(), IntentRequest{AmountCents: 100, Currency: "usd"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	require.True(t, pkgerrors.MetadataFor(pkgerrors.CodeGateway).Retryable)

	_, err = gw.CreateIntent(context.Background(), IntentRequest{Currency: "usd"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCancelIntentToleratesAlreadyCanceled(t *testing.T) {
	intents := &stubIntents{err: &stripe.Error{
		Code: stripe.ErrorCodePaymentIntentUnexpectedState,
		Msg:  "This PaymentIntent's status is canceled",
	}}
	gw := NewStripeGatewayWithAPIs(intents, &stubRefunds{})
	require.NoError(t, gw.CancelIntent(context.Background(), "pi_9"))
	require.Equal(t, "pi_9", intents.canceled)

	intents.err = errors.New("network down")
	err := gw.CancelIntent(context.Background(), "pi_9")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
}

func TestCreateRefundFullAndPartial(t *testing.T) {
	refunds := &stubRefunds{}
	gw := NewStripeGatewayWithAPIs(&stubIntents{}, refunds)

	_, err := gw.CreateRefund(context.Background(), RefundRequest{PaymentIntentID: "pi_1", IdempotencyKey: "r-1"})
	require.NoError(t, err)
	require.Nil(t, refunds.params.Amount)
	require.Equal(t, "pi_1", *refunds.params.PaymentIntent)

	amount := int64(4000)
	rf, err := gw.CreateRefund(context.Background(), RefundRequest{PaymentIntentID: "pi_1", AmountCents: &amount})
	require.NoError(t, err)
	require.EqualValues(t, 4000, rf.AmountCents)

	zero := int64(0)
	_, err = gw.CreateRefund(context.Background(), RefundRequest{PaymentIntentID: "pi_1", AmountCents: &zero})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonZeroRefund))
}
