// Package paymentstest provides a recording in-memory payments.Gateway.
package paymentstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Gateway records every call. Set the Fail* fields to make the next calls fail.
type Gateway struct {
	mu sync.Mutex

	FailCreate bool
	FailCancel bool
	FailRefund bool

	Intents   []payments.IntentRequest
	Cancelled []string
	Refunds   []payments.RefundRequest
}

func New() *Gateway {
	return &Gateway{}
}

func (g *Gateway) CreateIntent(_ context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailCreate {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "create payment intent")
	}
	g.Intents = append(g.Intents, req)
	n := len(g.Intents)
	return &payments.Intent{
		ID:           fmt.Sprintf("pi_test_%d", n),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", n),
		Status:       "requires_payment_method",
		AmountCents:  req.AmountCents,
	}, nil
}

func (g *Gateway) CancelIntent(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailCancel {
		return pkgerrors.New(pkgerrors.CodeGateway, "cancel payment intent")
	}
	g.Cancelled = append(g.Cancelled, intentID)
	return nil
}

func (g *Gateway) CreateRefund(_ context.Context, req payments.RefundRequest) (*payments.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailRefund {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "create refund")
	}
	g.Refunds = append(g.Refunds, req)
	var amount int64
	if req.AmountCents != nil {
		amount = *req.AmountCents
	}
	return &payments.Refund{
		ID:          fmt.Sprintf("re_test_%d", len(g.Refunds)),
		Status:      "pending",
		AmountCents: amount,
	}, nil
}

// LastIntent returns the most recent intent request.
func (g *Gateway) LastIntent() payments.IntentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Intents[len(g.Intents)-1]
}

// LastRefund returns the most recent refund request.
func (g *Gateway) LastRefund() payments.RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Refunds[len(g.Refunds)-1]
}
