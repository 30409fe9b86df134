package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type samplePayload struct {
	Code     string `json:"code" validate:"required,min=6,max=12"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"abc","quantity":0}`))
	var payload samplePayload
	err := DecodeJSONBody(req, &payload)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	if details["code"] != "must be at least 6" {
		t.Fatalf("unexpected code message %q", details["code"])
	}
	if details["quantity"] != "must be greater than 0" {
		t.Fatalf("unexpected quantity message %q", details["quantity"])
	}
}

type discountPayload struct {
	Discount decimal.Decimal `json:"discount" validate:"gt=0,lte=100"`
}

func TestDecodeJSONBodyDecimalBounds(t *testing.T) {
	for body, ok := range map[string]bool{
		`{"discount":"12.5"}`: true,
		`{"discount":"100"}`:  true,
		`{"discount":"0"}`:    false,
		`{"discount":"101"}`:  false,
	} {
		var payload discountPayload
		err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &payload)
		if ok && err != nil {
			t.Fatalf("%s: unexpected error %v", body, err)
		}
		if !ok && !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", body, err)
		}
	}
}

func TestDecodeJSONBodyRejectsEmptyAndTrailing(t *testing.T) {
	var payload samplePayload
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &payload)
	if typed := pkgerrors.As(err); typed == nil || typed.Message() != "request body is empty" {
		t.Fatalf("expected empty body error, got %v", err)
	}
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"SAVE10NOW","quantity":1}{}`)), &payload)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected trailing data rejected, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"SAVE10NOW","quantity":1,"extra":true}`))
	var payload samplePayload
	if err := DecodeJSONBody(req, &payload); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	body := `{"code":"` + strings.Repeat("A", MaxBodyBytes) + `","quantity":1}`
	var payload samplePayload
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &payload)
	if !pkgerrors.IsCode(err, pkgerrors.CodeTooLarge) {
		t.Fatalf("expected too large error, got %v", err)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := ParseQueryInt(req, "limit", 20, 1, 100); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	got, err := ParseQueryInt(req, "limit", 20, 1, 100)
	if err != nil || got != 20 {
		t.Fatalf("expected default 20, got %d (%v)", got, err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", id.String())
	got, err := ParseUUIDParam(req, "orderId")
	if err != nil || got != id {
		t.Fatalf("expected %s got %s (%v)", id, got, err)
	}

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", "nope")
	if _, err := ParseUUIDParam(req, "orderId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  12 Main St  ", 5); got != "12 Ma" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
	if got := SanitizeString("Flat 4\r\n\tBlock   B", 0); got != "Flat 4 Block B" {
		t.Fatalf("expected whitespace folded, got %q", got)
	}
	if got := SanitizeString("Gulberg Lahore ٹاؤن", 16); got != "Gulberg Lahore ٹ" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
