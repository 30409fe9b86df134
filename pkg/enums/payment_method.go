package enums

import "fmt"

// PaymentMethod is how the buyer settles: a card captured by the payment
// gateway, or cash handed over at delivery.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodCOD  PaymentMethod = "cod"
)

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool {
	return p == PaymentMethodCard || p == PaymentMethodCOD
}

// SettlesThroughGateway is true when money moves via the payment processor,
// so refunds and intent cancellation must go through it too.
func (p PaymentMethod) SettlesThroughGateway() bool {
	return p == PaymentMethodCard
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if m := PaymentMethod(value); m.IsValid() {
		return m, nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
