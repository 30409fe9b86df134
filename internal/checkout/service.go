// Package checkout turns a cart or a single product into an unpaid order and
// a payment intent, or into a cash-on-delivery order with stock committed.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	KindCart   = "cart"
	KindBuyNow = "buy_now"
	KindCOD    = "cod"
)

type cartReader interface {
	Snapshot(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*cart.Snapshot, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type stockCommitter interface {
	Commit(ctx context.Context, tx *gorm.DB, deltas []stock.Delta) error
}

// Observer is notified of every checkout attempt.
type Observer interface {
	ObserveCheckout(kind string, err error)
}

// Service executes checkout orchestration.
type Service interface {
	CheckoutCart(ctx context.Context, userID uuid.UUID, input CartCheckoutInput) (*Result, error)
	BuyNow(ctx context.Context, userID uuid.UUID, input BuyNowInput) (*Result, error)
	PlaceCashOnDelivery(ctx context.Context, userID uuid.UUID, input CartCheckoutInput) (*models.Order, error)
}

// CartCheckoutInput captures optional data used during cart checkout. An
// empty CouponCode falls back to the coupon already applied to the cart.
type CartCheckoutInput struct {
	CouponCode      string
	ShippingAddress string
}

type BuyNowInput struct {
	ProductID       uuid.UUID
	VariantID       *uuid.UUID
	Quantity        int
	CouponCode      string
	ShippingAddress string
}

// AppliedCoupon echoes the coupon used to price an order.
type AppliedCoupon struct {
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// Result is returned to the client to confirm payment.
type Result struct {
	ClientSecret  string          `json:"clientSecret"`
	OrderID       uuid.UUID       `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	AppliedCoupon *AppliedCoupon  `json:"appliedCoupon,omitempty"`
}

type ServiceParams struct {
	TransactionRunner db.TxRunner
	Carts             cartReader
	Catalog           catalog.Reader
	Coupons           coupons.Checker
	Redeemer          coupons.Redeemer
	Orders            orders.Repository
	Gateway           payments.Gateway
	Stock             stockCommitter
	Outbox            outbox.Emitter
	Observer          Observer
	Logger            *logger.Logger
	Currency          string
	CODCurrency       string
	Clock             func() time.Time
}

type service struct {
	tx          db.TxRunner
	carts       cartReader
	catalog     catalog.Reader
	coupons     coupons.Checker
	redeemer    coupons.Redeemer
	orders      orders.Repository
	gateway     payments.Gateway
	stock       stockCommitter
	outbox      outbox.Emitter
	observer    Observer
	logg        *logger.Logger
	currency    string
	codCurrency string
	now         func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TransactionRunner == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart reader required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog reader required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon checker required")
	case params.Redeemer == nil:
		return nil, fmt.Errorf("coupon redeemer required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	codCurrency := strings.TrimSpace(params.CODCurrency)
	if codCurrency == "" {
		codCurrency = "PKR"
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		tx:          params.TransactionRunner,
		carts:       params.Carts,
		catalog:     params.Catalog,
		coupons:     params.Coupons,
		redeemer:    params.Redeemer,
		orders:      params.Orders,
		gateway:     params.Gateway,
		stock:       params.Stock,
		outbox:      params.Outbox,
		observer:    params.Observer,
		logg:        params.Logger,
		currency:    currency,
		codCurrency: codCurrency,
		now:         clock,
	}, nil
}

func (s *service) CheckoutCart(ctx context.Context, userID uuid.UUID, input CartCheckoutInput) (result *Result, err error) {
	defer func() { s.observe(KindCart, err) }()

	snap, err := s.carts.Snapshot(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(input.CouponCode)
	if code == "" && snap.AppliedCoupon != nil {
		code = *snap.AppliedCoupon
	}
	applied, err := s.validateCoupon(ctx, code, userID)
	if err != nil {
		return nil, err
	}

	order := s.newOrder(userID, enums.PaymentMethodCard, s.currency, input.ShippingAddress)
	order.FromCart = true
	for i, item := range snap.Items {
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			Position:  i,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Size:      item.Size,
			Color:     item.Color,
			UnitPrice: item.Price,
			Quantity:  item.Count,
		})
	}
	price(order, snap.Total(), applied)
	return s.placeCardOrder(ctx, order, applied)
}

func (s *service) BuyNow(ctx context.Context, userID uuid.UUID, input BuyNowInput) (result *Result, err error) {
	defer func() { s.observe(KindBuyNow, err) }()

	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	unit, err := s.catalog.Resolve(ctx, input.ProductID, input.VariantID)
	if err != nil {
		return nil, err
	}
	if unit.Available() < input.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").
			WithDetails(map[string]any{
				"reason":    string(pkgerrors.ReasonOutOfStock),
				"available": unit.Available(),
			})
	}
	applied, err := s.validateCoupon(ctx, input.CouponCode, userID)
	if err != nil {
		return nil, err
	}

	unitPrice := catalog.UnitPrice(unit.Product, unit.Variant, s.now())
	item := models.OrderLineItem{
		ProductID: unit.Product.ID,
		UnitPrice: unitPrice,
		Quantity:  input.Quantity,
	}
	if unit.Variant != nil {
		variantID := unit.Variant.ID
		item.VariantID = &variantID
		item.Size = unit.Variant.Size
		item.Color = unit.Variant.Color
	}
	order := s.newOrder(userID, enums.PaymentMethodCard, s.currency, input.ShippingAddress)
	order.LineItems = []models.OrderLineItem{item}
	price(order, money.LineTotal(unitPrice, input.Quantity), applied)
	return s.placeCardOrder(ctx, order, applied)
}

// PlaceCashOnDelivery creates a COD order from the cart. Stock is committed
// and the coupon redeemed immediately since no payment confirmation follows.
func (s *service) PlaceCashOnDelivery(ctx context.Context, userID uuid.UUID, input CartCheckoutInput) (placed *models.Order, err error) {
	defer func() { s.observe(KindCOD, err) }()

	snap, err := s.carts.Snapshot(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(input.CouponCode)
	if code == "" && snap.AppliedCoupon != nil {
		code = *snap.AppliedCoupon
	}
	applied, err := s.validateCoupon(ctx, code, userID)
	if err != nil {
		return nil, err
	}

	order := s.newOrder(userID, enums.PaymentMethodCOD, s.codCurrency, input.ShippingAddress)
	order.StockCommitted = true
	order.FromCart = true
	for i, item := range snap.Items {
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			Position:  i,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Size:      item.Size,
			Color:     item.Color,
			UnitPrice: item.Price,
			Quantity:  item.Count,
		})
	}
	price(order, snap.Total(), applied)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.stock.Commit(ctx, tx, orders.StockDeltas(order.LineItems, orders.OrderedQty)); err != nil {
			return err
		}
		if applied != nil {
			if err := s.redeemer.MarkUsed(ctx, tx, applied.Code, userID, order.ID); err != nil {
				return err
			}
		}
		if err := s.carts.Clear(ctx, tx, userID); err != nil {
			return err
		}
		return s.emitCreated(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}
	s.logPlaced(ctx, order)
	return order, nil
}

func (s *service) validateCoupon(ctx context.Context, code string, userID uuid.UUID) (*coupons.Applied, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	return s.coupons.Validate(ctx, code, userID)
}

func (s *service) newOrder(userID uuid.UUID, method enums.PaymentMethod, currency, address string) *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		PaymentMethod:   method,
		Currency:        currency,
		Status:          enums.OrderStatusProcessing,
		ShippingAddress: strings.TrimSpace(address),
	}
}

// price sets amount_paid from the pre-discount total and the coupon, if any.
func price(order *models.Order, total decimal.Decimal, applied *coupons.Applied) {
	order.AmountPaid = total.Round(2)
	if applied == nil {
		return
	}
	code := applied.Code
	discount := applied.DiscountPercent
	order.AppliedCouponCode = &code
	order.AppliedCouponDiscount = &discount
	order.AmountPaid = money.ApplyPercentDiscount(total, discount)
}

// placeCardOrder persists the unpaid order and creates its payment intent in
// one transaction; a gateway failure leaves no order behind.
func (s *service) placeCardOrder(ctx context.Context, order *models.Order, applied *coupons.Applied) (*Result, error) {
	cents := money.ToCents(order.AmountPaid)
	if cents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	var intent *payments.Intent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		var err error
		intent, err = s.gateway.CreateIntent(ctx, payments.IntentRequest{
			AmountCents: cents,
			Currency:    order.Currency,
			Metadata: map[string]string{
				payments.MetadataOrderID: order.ID.String(),
				payments.MetadataUserID:  order.UserID.String(),
			},
			IdempotencyKey: order.ID.String(),
		})
		if err != nil {
			return err
		}
		if err := repo.SetPaymentIntent(ctx, order.ID, intent.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent")
		}
		intentID := intent.ID
		order.PaymentIntentID = &intentID
		return s.emitCreated(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}
	s.logPlaced(ctx, order)

	result := &Result{
		ClientSecret: intent.ClientSecret,
		OrderID:      order.ID,
		Amount:       order.AmountPaid,
	}
	if applied != nil {
		result.AppliedCoupon = &AppliedCoupon{Code: applied.Code, DiscountPercent: applied.DiscountPercent}
	}
	return result, nil
}

func (s *service) emitCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: string(enums.UserRoleCustomer)},
		Data: payloads.OrderCreatedEvent{
			OrderID:         order.ID,
			UserID:          order.UserID,
			PaymentMethod:   order.PaymentMethod,
			PaymentIntentID: order.PaymentIntentID,
			Amount:          order.AmountPaid,
			Currency:        order.Currency,
			CouponCode:      order.AppliedCouponCode,
			ItemCount:       len(order.LineItems),
		},
	})
}

func (s *service) observe(kind string, err error) {
	if s.observer != nil {
		s.observer.ObserveCheckout(kind, err)
	}
}

func (s *service) logPlaced(ctx context.Context, order *models.Order) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"payment_method": string(order.PaymentMethod),
		"amount":         order.AmountPaid.StringFixed(2),
	})
	s.logg.Info(logCtx, "order placed")
}
