package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var testCfg = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "storefront",
	ExpirationMinutes: 30,
}

func signRaw(t *testing.T, method jwt.SigningMethod, claims AccessTokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)
	return token
}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{UserID: userID, Role: enums.UserRoleAdmin, JTI: "jti-1"})
	require.NoError(t, err)

	verifier, err := NewVerifier(testCfg)
	require.NoError(t, err)
	claims, err := verifier.Parse(token)
	require.NoError(t, err)

	require.Equal(t, userID, claims.UserID)
	require.True(t, claims.IsAdmin())
	require.Equal(t, testCfg.Issuer, claims.Issuer)
	require.Equal(t, "jti-1", claims.ID)
	require.Equal(t, userID.String(), claims.Subject)
	require.True(t, claims.ExpiresAt.Time.After(now))
}

func TestParseAccessTokenRejects(t *testing.T) {
	customer := AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	expired, err := MintAccessToken(testCfg, time.Now().Add(-2*time.Hour), customer)
	require.NoError(t, err)
	valid, err := MintAccessToken(testCfg, time.Now(), customer)
	require.NoError(t, err)

	otherSecret := testCfg
	otherSecret.Secret = "other"
	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"

	userID := uuid.New()
	expiry := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]struct {
		cfg   config.JWTConfig
		token string
	}{
		"expired":      {cfg: testCfg, token: expired},
		"wrong secret": {cfg: otherSecret, token: valid},
		"wrong issuer": {cfg: otherIssuer, token: valid},
		"hs512": {cfg: testCfg, token: signRaw(t, jwt.SigningMethodHS512, AccessTokenClaims{
			UserID:           userID,
			Role:             enums.UserRoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: testCfg.Issuer, ExpiresAt: expiry},
		})},
		"no expiry": {cfg: testCfg, token: signRaw(t, signingMethod, AccessTokenClaims{
			UserID:           userID,
			Role:             enums.UserRoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: testCfg.Issuer},
		})},
		"subject mismatch": {cfg: testCfg, token: signRaw(t, signingMethod, AccessTokenClaims{
			UserID:           userID,
			Role:             enums.UserRoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: testCfg.Issuer, Subject: uuid.NewString(), ExpiresAt: expiry},
		})},
		"unknown role": {cfg: testCfg, token: signRaw(t, signingMethod, AccessTokenClaims{
			UserID:           userID,
			Role:             "owner",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: testCfg.Issuer, ExpiresAt: expiry},
		})},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.cfg, tc.token)
			require.Error(t, err)
		})
	}
}

func TestParseToleratesClockSkew(t *testing.T) {
	token, err := MintAccessToken(config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 1}, time.Now().Add(-70*time.Second), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)
	_, err = ParseAccessToken(testCfg, token)
	require.NoError(t, err)
}

func TestMintAccessTokenValidatesPayload(t *testing.T) {
	_, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{Role: enums.UserRoleAdmin})
	require.ErrorIs(t, err, ErrMissingSubject)

	_, err = MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)

	_, err = MintAccessToken(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.ErrorIs(t, err, errNoSecret)

	_, err = NewVerifier(config.JWTConfig{Secret: "s"})
	require.ErrorIs(t, err, errNoIssuer)
}
