package refunds

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/payments/paymentstest"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type fixture struct {
	conn    *gorm.DB
	svc     Service
	gateway *paymentstest.Gateway
	orders  orders.Repository
	admin   uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	gateway := paymentstest.New()
	repo := orders.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		TransactionRunner: db.FromConn(conn),
		Orders:            repo,
		Gateway:           gateway,
		Outbox:            outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Logger:            logger.Nop(),
	})
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, gateway: gateway, orders: repo, admin: uuid.New()}
}

func (f fixture) paidOrder(t *testing.T) models.Order {
	t.Helper()
	product := dbtest.SeedProduct(t, f.conn, "20.00", 10)
	other := dbtest.SeedProduct(t, f.conn, "15.00", 10)
	return dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{
		PaymentIntentID: "pi_paid",
		IsPaid:          true,
		StockCommitted:  true,
		Items: []dbtest.ItemSeed{
			{Product: product, UnitPrice: "20.00", Quantity: 5},
			{Product: other, UnitPrice: "15.00", Quantity: 2},
		},
	})
}

func (f fixture) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (f fixture) refundRecords(t *testing.T, orderID uuid.UUID) []models.Refund {
	t.Helper()
	var rows []models.Refund
	require.NoError(t, f.conn.Where("order_id = ?", orderID).Find(&rows).Error)
	return rows
}

func (f fixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestRefundFullInitiates(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t)

	result, err := f.svc.RefundFull(context.Background(), f.admin, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.RefundKindFull, result.Kind)
	require.Equal(t, "re_test_1", result.GatewayRefundID)

	req := f.gateway.LastRefund()
	require.Equal(t, "pi_paid", req.PaymentIntentID)
	require.Nil(t, req.AmountCents)
	require.Equal(t, result.RefundID.String(), req.IdempotencyKey)

	reloaded := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusRefundInitiated, reloaded.Status)
	require.True(t, reloaded.IsPaid)
	require.True(t, reloaded.StockCommitted)

	records := f.refundRecords(t, order.ID)
	require.Len(t, records, 1)
	require.Equal(t, enums.RefundStatusPending, records[0].Status)
	require.Equal(t, f.admin, records[0].InitiatedBy)
	require.NotNil(t, records[0].GatewayRefundID)
	require.Equal(t, "re_test_1", *records[0].GatewayRefundID)
	require.Equal(t, int64(1), f.countEvents(t, enums.EventOrderRefundInitiated))
}

func TestRefundFullRejectsPendingAndUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t)

	_, err := f.svc.RefundFull(ctx, f.admin, order.ID)
	require.NoError(t, err)
	_, err = f.svc.RefundFull(ctx, f.admin, order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	product := dbtest.SeedProduct(t, f.conn, "10.00", 5)
	unpaid := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{
		PaymentIntentID: "pi_unpaid",
		Items:           []dbtest.ItemSeed{{Product: product, UnitPrice: "10.00", Quantity: 1}},
	})
	_, err = f.svc.RefundFull(ctx, f.admin, unpaid.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.RefundFull(ctx, f.admin, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.Len(t, f.gateway.Refunds, 1)
}

func TestRefundFullGatewayFailureRestoresOrder(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t)
	f.gateway.FailRefund = true

	_, err := f.svc.RefundFull(context.Background(), f.admin, order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))

	reloaded := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	records := f.refundRecords(t, order.ID)
	require.Len(t, records, 1)
	require.Equal(t, enums.RefundStatusFailed, records[0].Status)
	require.Nil(t, records[0].GatewayRefundID)
	require.Zero(t, f.countEvents(t, enums.EventOrderRefundInitiated))

	f.gateway.FailRefund = false
	_, err = f.svc.RefundFull(context.Background(), f.admin, order.ID)
	require.NoError(t, err, "an abandoned refund does not block a retry")
}

func TestRefundPartialReservesPendingUnits(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t)
	first := order.LineItems[0]

	result, err := f.svc.RefundPartial(context.Background(), f.admin, order.ID, []orders.ItemRequest{
		{OrderItemID: first.ID, Quantity: 2},
	})
	require.NoError(t, err)
	require.Equal(t, enums.RefundKindPartial, result.Kind)
	require.True(t, result.Amount.Equal(decimal.RequireFromString("40.00")))

	req := f.gateway.LastRefund()
	require.NotNil(t, req.AmountCents)
	require.Equal(t, int64(4000), *req.AmountCents)

	reloaded := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusRefundInitiated, reloaded.Status)
	require.Equal(t, 2, reloaded.LineItems[0].PendingRefundQty)
	require.Equal(t, 0, reloaded.LineItems[0].RefundedQty)
	require.True(t, reloaded.AmountPaid.Equal(decimal.RequireFromString("130.00")))

	records := f.refundRecords(t, order.ID)
	require.Len(t, records, 1)
	require.JSONEq(t, `[{"orderItemId":"`+first.ID.String()+`","quantity":2}]`, string(records[0].Items))
}

func TestRefundPartialAllowsFurtherUnitsWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t)
	first := order.LineItems[0]

	_, err := f.svc.RefundPartial(ctx, f.admin, order.ID, []orders.ItemRequest{{OrderItemID: first.ID, Quantity: 3}})
	require.NoError(t, err)

	_, err = f.svc.RefundPartial(ctx, f.admin, order.ID, []orders.ItemRequest{{OrderItemID: first.ID, Quantity: 3}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.RefundPartial(ctx, f.admin, order.ID, []orders.ItemRequest{{OrderItemID: first.ID, Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, 5, f.reload(t, order.ID).LineItems[0].PendingRefundQty)

	_, err = f.svc.RefundFull(ctx, f.admin, order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestRefundPartialValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t)

	_, err := f.svc.RefundPartial(ctx, f.admin, order.ID, []orders.ItemRequest{{OrderItemID: uuid.New(), Quantity: 1}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.RefundPartial(ctx, f.admin, order.ID, []orders.ItemRequest{{OrderItemID: order.LineItems[1].ID, Quantity: 0}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.RefundPartial(ctx, f.admin, order.ID, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Empty(t, f.gateway.Refunds)
}

func TestRefundPartialGatewayFailureRollsBackPending(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t)
	f.gateway.FailRefund = true

	_, err := f.svc.RefundPartial(context.Background(), f.admin, order.ID, []orders.ItemRequest{
		{OrderItemID: order.LineItems[1].ID, Quantity: 1},
	})
	require.Error(t, err)

	reloaded := f.reload(t, order.ID)
	require.Equal(t, 0, reloaded.LineItems[1].PendingRefundQty)
	require.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	records := f.refundRecords(t, order.ID)
	require.Len(t, records, 1)
	require.Equal(t, enums.RefundStatusFailed, records[0].Status)
}

func TestRefundPartialGatewayFailureKeepsOtherPendingRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t)

	_, err := f.svc.RefundPartial(ctx, f.admin, order.ID, []orders.ItemRequest{{OrderItemID: order.LineItems[0].ID, Quantity: 2}})
	require.NoError(t, err)

	f.gateway.FailRefund = true
	_, err = f.svc.RefundPartial(ctx, f.admin, order.ID, []orders.ItemRequest{{OrderItemID: order.LineItems[1].ID, Quantity: 1}})
	require.Error(t, err)

	reloaded := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusRefundInitiated, reloaded.Status)
	require.Equal(t, 2, reloaded.LineItems[0].PendingRefundQty)
	require.Zero(t, reloaded.LineItems[1].PendingRefundQty)
}

func TestRefundPartialReservesBeforeCallingGateway(t *testing.T) {
	conn := dbtest.Open(t)
	repo := orders.NewRepository(conn)
	gateway := &inspectingGateway{Gateway: paymentstest.New(), conn: conn}
	svc, err := NewService(ServiceParams{
		TransactionRunner: db.FromConn(conn),
		Orders:            repo,
		Gateway:           gateway,
		Outbox:            failingEmitter{},
		Logger:            logger.Nop(),
	})
	require.NoError(t, err)
	f := fixture{conn: conn, svc: svc, gateway: gateway.Gateway, orders: repo, admin: uuid.New()}
	order := f.paidOrder(t)

	result, err := svc.RefundPartial(context.Background(), f.admin, order.ID, []orders.ItemRequest{{OrderItemID: order.LineItems[0].ID, Quantity: 2}})
	require.NoError(t, err, "the processor accepted the refund")
	require.Equal(t, "re_test_1", result.GatewayRefundID)

	require.Equal(t, 2, gateway.pendingAtCall, "pending units are committed before the processor is called")
	require.Equal(t, enums.OrderStatusRefundInitiated, gateway.statusAtCall)

	reloaded := f.reload(t, order.ID)
	require.Equal(t, 2, reloaded.LineItems[0].PendingRefundQty, "the reconciler can still settle the refund")
	records := f.refundRecords(t, order.ID)
	require.Len(t, records, 1)
	require.Equal(t, enums.RefundStatusPending, records[0].Status)
	require.Nil(t, records[0].GatewayRefundID)
}

func TestRestoreStatus(t *testing.T) {
	require.Equal(t, enums.OrderStatusShipped, restoreStatus(enums.OrderStatusShipped, nil))
	require.Equal(t, enums.OrderStatusProcessing, restoreStatus(enums.OrderStatusRefundInitiated, []models.OrderLineItem{{Quantity: 2}}))
	require.Equal(t, enums.OrderStatusPartiallyRefunded, restoreStatus(enums.OrderStatusRefundInitiated, []models.OrderLineItem{{Quantity: 2, RefundedQty: 1}}))
}

type inspectingGateway struct {
	*paymentstest.Gateway
	conn          *gorm.DB
	pendingAtCall int
	statusAtCall  enums.OrderStatus
}

func (g *inspectingGateway) CreateRefund(ctx context.Context, req payments.RefundRequest) (*payments.Refund, error) {
	var order models.Order
	if err := g.conn.Preload("LineItems").First(&order, "payment_intent_id = ?", req.PaymentIntentID).Error; err != nil {
		return nil, err
	}
	g.statusAtCall = order.Status
	for _, item := range order.LineItems {
		g.pendingAtCall += item.PendingRefundQty
	}
	return g.Gateway.CreateRefund(ctx, req)
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func TestRefundPartialRejectsCashOnDelivery(t *testing.T) {
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.conn, "10.00", 5)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{
		Method: enums.PaymentMethodCOD,
		IsPaid: true,
		Status: enums.OrderStatusDelivered,
		Items:  []dbtest.ItemSeed{{Product: product, UnitPrice: "10.00", Quantity: 1}},
	})

	_, err := f.svc.RefundPartial(context.Background(), f.admin, order.ID, []orders.ItemRequest{
		{OrderItemID: order.LineItems[0].ID, Quantity: 1},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}
