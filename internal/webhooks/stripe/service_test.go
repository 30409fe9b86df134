package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubReconciler struct {
	confirmations []reconcile.PaymentConfirmation
	notices       []reconcile.RefundNotice
	events        []reconcile.Event
	outcome       reconcile.Outcome
	err           error
}

func (s *stubReconciler) ConfirmPayment(_ context.Context, event reconcile.Event, pc reconcile.PaymentConfirmation) (reconcile.Outcome, error) {
	s.events = append(s.events, event)
	s.confirmations = append(s.confirmations, pc)
	return s.outcome, s.err
}

func (s *stubReconciler) FinalizeRefund(_ context.Context, event reconcile.Event, notice reconcile.RefundNotice) (reconcile.Outcome, error) {
	s.events = append(s.events, event)
	s.notices = append(s.notices, notice)
	return s.outcome, s.err
}

func newTestService(t *testing.T, rec *stubReconciler) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Reconciler: rec})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func rawEvent(t *testing.T, id string, typ stripe.EventType, obj any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal event object: %v", err)
	}
	return &stripe.Event{ID: id, Type: typ, Data: &stripe.EventData{Raw: raw}}
}

func TestHandleEventPaymentSucceeded(t *testing.T) {
	rec := &stubReconciler{outcome: reconcile.OutcomeApplied}
	svc := newTestService(t, rec)
	orderID := uuid.New()

	event := rawEvent(t, "evt_1", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":              "pi_123",
		"object":          "payment_intent",
		"amount":          9000,
		"amount_received": 9000,
		"metadata":        map[string]string{"orderId": orderID.String()},
	})

	outcome, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != reconcile.OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}
	if len(rec.confirmations) != 1 {
		t.Fatalf("expected one confirmation, got %d", len(rec.confirmations))
	}
	pc := rec.confirmations[0]
	if pc.OrderID != orderID || pc.PaymentIntentID != "pi_123" || pc.AmountCents != 9000 {
		t.Fatalf("unexpected confirmation %+v", pc)
	}
	if rec.events[0].ID != "evt_1" || rec.events[0].Type != string(stripe.EventTypePaymentIntentSucceeded) {
		t.Fatalf("unexpected event ref %+v", rec.events[0])
	}
}

func TestHandleEventPaymentSucceededFallsBackToAmount(t *testing.T) {
	rec := &stubReconciler{outcome: reconcile.OutcomeApplied}
	svc := newTestService(t, rec)

	event := rawEvent(t, "evt_2", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_456",
		"object":   "payment_intent",
		"amount":   2500,
		"metadata": map[string]string{"orderId": "not-a-uuid"},
	})

	if _, err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	pc := rec.confirmations[0]
	if pc.AmountCents != 2500 {
		t.Fatalf("expected amount fallback, got %d", pc.AmountCents)
	}
	if pc.OrderID != uuid.Nil {
		t.Fatalf("expected nil order id for bad metadata, got %s", pc.OrderID)
	}
}

func TestHandleEventChargeRefunded(t *testing.T) {
	rec := &stubReconciler{outcome: reconcile.OutcomeApplied}
	svc := newTestService(t, rec)

	event := rawEvent(t, "evt_3", stripe.EventTypeChargeRefunded, map[string]any{
		"id":              "ch_1",
		"object":          "charge",
		"amount":          10000,
		"amount_refunded": 4000,
		"refunded":        false,
		"payment_intent":  "pi_789",
	})

	if _, err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(rec.notices) != 1 {
		t.Fatalf("expected one refund notice, got %d", len(rec.notices))
	}
	notice := rec.notices[0]
	want := reconcile.RefundNotice{
		PaymentIntentID:     "pi_789",
		AmountRefundedCents: 4000,
		ChargeAmountCents:   10000,
	}
	if notice != want {
		t.Fatalf("unexpected notice %+v", notice)
	}
}

func TestHandleEventChargeWithoutIntent(t *testing.T) {
	rec := &stubReconciler{}
	svc := newTestService(t, rec)

	event := rawEvent(t, "evt_4", stripe.EventTypeChargeRefunded, map[string]any{
		"id":     "ch_2",
		"object": "charge",
		"amount": 100,
	})

	_, err := svc.HandleEvent(context.Background(), event)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation code, got %v", err)
	}
	if len(rec.notices) != 0 {
		t.Fatal("reconciler must not be called")
	}
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	rec := &stubReconciler{}
	svc := newTestService(t, rec)

	event := rawEvent(t, "evt_5", stripe.EventTypeCustomerCreated, map[string]any{"id": "cus_1"})
	outcome, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != reconcile.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", outcome)
	}
	if len(rec.events) != 0 {
		t.Fatal("reconciler must not be called")
	}
}

func TestHandleEventPropagatesReconcilerError(t *testing.T) {
	rec := &stubReconciler{err: errors.New("boom")}
	svc := newTestService(t, rec)

	event := rawEvent(t, "evt_6", stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_1"})
	if _, err := svc.HandleEvent(context.Background(), event); err == nil {
		t.Fatal("expected error")
	}
}

func TestHandleEventRequiresData(t *testing.T) {
	svc := newTestService(t, &stubReconciler{})
	if _, err := svc.HandleEvent(context.Background(), &stripe.Event{ID: "evt"}); err == nil {
		t.Fatal("expected error for missing data")
	}
}

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestIdempotencyGuardLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	claimed, err := guard.Claim(ctx, "evt_1")
	if err != nil || !claimed {
		t.Fatalf("expected first claim, got %v %v", claimed, err)
	}
	processing, _ := guard.Processing(ctx, "evt_1")
	if !processing {
		t.Fatal("expected event to be processing")
	}

	claimed, _ = guard.Claim(ctx, "evt_1")
	if claimed {
		t.Fatal("second claim must fail while processing")
	}

	if err := guard.Complete(ctx, "evt_1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	processing, _ = guard.Processing(ctx, "evt_1")
	if processing {
		t.Fatal("completed event must not be processing")
	}
	claimed, _ = guard.Claim(ctx, "evt_1")
	if claimed {
		t.Fatal("completed event must not be claimable")
	}
}

func TestIdempotencyGuardReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Hour, "stripe")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	if claimed, _ := guard.Claim(ctx, "evt_2"); !claimed {
		t.Fatal("expected claim")
	}
	if err := guard.Release(ctx, "evt_2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if claimed, _ := guard.Claim(ctx, "evt_2"); !claimed {
		t.Fatal("expected claim after release")
	}
}

func TestNewIdempotencyGuardValidates(t *testing.T) {
	if _, err := NewIdempotencyGuard(nil, time.Hour, "stripe"); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewIdempotencyGuard(newMemoryStore(), time.Hour, ""); err == nil {
		t.Fatal("expected scope error")
	}
	if _, err := NewIdempotencyGuard(newMemoryStore(), -time.Second, "stripe"); err == nil {
		t.Fatal("expected ttl error")
	}
	if _, err := guardClaimEmpty(); err == nil {
		t.Fatal("expected empty id error")
	}
}

func guardClaimEmpty() (bool, error) {
	guard, _ := NewIdempotencyGuard(newMemoryStore(), time.Hour, "stripe")
	return guard.Claim(context.Background(), "")
}
