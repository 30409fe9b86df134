package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type applyCouponRequest struct {
	CouponCode string `json:"couponCode" validate:"required,max=12"`
}

type buyNowCouponRequest struct {
	ProductID  uuid.UUID  `json:"productId" validate:"required"`
	VariantID  *uuid.UUID `json:"variantId,omitempty"`
	Quantity   int        `json:"quantity" validate:"omitempty,gt=0"`
	CouponCode string     `json:"couponCode" validate:"required,max=12"`
}

type createCouponRequest struct {
	Code     string          `json:"code" validate:"required,min=6,max=12"`
	Expiry   time.Time       `json:"expiry" validate:"required"`
	Discount decimal.Decimal `json:"discount" validate:"gt=0,lte=100"`
}

type couponResponse struct {
	ID        uuid.UUID       `json:"id"`
	Code      string          `json:"code"`
	Expiry    time.Time       `json:"expiry"`
	Discount  decimal.Decimal `json:"discount"`
	CreatedAt time.Time       `json:"createdAt"`
}

func newCouponResponse(c models.Coupon) couponResponse {
	return couponResponse{
		ID:        c.ID,
		Code:      c.Code,
		Expiry:    c.Expiry,
		Discount:  c.Discount,
		CreatedAt: c.CreatedAt,
	}
}

// ApplyCoupon quotes the caller's cart with a coupon and stores the discount on the cart.
func ApplyCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload applyCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.ApplyToCart(r.Context(), userID, strings.TrimSpace(payload.CouponCode))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// ApplyBuyNowCoupon prices a buy-now purchase with a coupon without touching the cart.
func ApplyBuyNowCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload buyNowCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity := payload.Quantity
		if quantity == 0 {
			quantity = 1
		}

		quote, err := svc.QuoteBuyNow(r.Context(), userID, coupons.BuyNowQuoteInput{
			ProductID: payload.ProductID,
			VariantID: payload.VariantID,
			Quantity:  quantity,
			Code:      strings.TrimSpace(payload.CouponCode),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

func AdminCreateCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		var payload createCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Create(r.Context(), coupons.CreateInput{
			Code:     payload.Code,
			Expiry:   payload.Expiry,
			Discount: payload.Discount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCouponResponse(*coupon))
	}
}

func AdminListCoupons(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]couponResponse, 0, len(list))
		for _, c := range list {
			out = append(out, newCouponResponse(c))
		}
		responses.WriteSuccess(w, out)
	}
}

func AdminDeleteCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		couponID, err := validators.ParseUUIDParam(r, "couponId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), couponID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
