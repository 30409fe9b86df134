package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	// signatureTolerance bounds how old a signed webhook timestamp may be.
	signatureTolerance = 5 * time.Minute
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// secret and restricted key prefixes accepted per environment
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test", "rk_test"},
	liveEnv: {"sk_live", "rk_live"},
}

// Client is the process-wide Stripe handle. Constructing it sets the
// package-level API key used by the payment intent and refund helpers.
type Client struct {
	environment   string
	signingSecret string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := strings.TrimSpace(strings.ToLower(cfg.Environment()))
	if env == "" {
		env = testEnv
	}
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, errInvalidStripeEnv
	}

	key := strings.TrimSpace(cfg.APIKey)
	switch {
	case key == "":
		return nil, errAPIKeyRequired
	case !hasAnyPrefix(key, prefixes):
		return nil, fmt.Errorf("stripe %s mode rejects key %q...: expected one of %s", env, redact(key), strings.Join(prefixes, ", "))
	}

	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}

	stripe.Key = key
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"stripe_env": env, "stripe_api_version": stripe.APIVersion})
		logg.Info(ctx, "stripe.client.ready")
	}
	return &Client{environment: env, signingSecret: secret}, nil
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// VerifyEvent authenticates a webhook delivery with the configured secret.
func (c *Client) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	return VerifyEvent(payload, signature, c.SigningSecret())
}

// VerifyEvent checks the Stripe-Signature header against payload and decodes
// the event. Events rendered for another API version are still accepted.
func VerifyEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	if strings.TrimSpace(secret) == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                signatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func redact(key string) string {
	if len(key) <= 7 {
		return key
	}
	return key[:7]
}
