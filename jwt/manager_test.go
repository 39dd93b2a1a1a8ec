package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func hsManager(t *testing.T, class Class, secret string, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{Class: class, TTL: ttl, SigningMethod: MethodHS256, PrivateKey: []byte(secret)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func signRaw(t *testing.T, method gjwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	tok, err := gjwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestSignAndParseRoundTrip(t *testing.T) {
	m := hsManager(t, ClassAccess, "access-secret", 15*time.Minute)

	tok, err := m.Sign("42", "a@x", "n-1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "42" || claims.Identifier != "a@x" || claims.Nonce != "n-1" || claims.Class != ClassAccess {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 15*time.Minute {
		t.Fatalf("expected 15m lifetime, got %v", got)
	}
}

func TestParseRejectsOtherClass(t *testing.T) {
	access := hsManager(t, ClassAccess, "shared", time.Minute)
	refresh := hsManager(t, ClassRefresh, "shared", time.Hour)

	tok, err := access.Sign("1", "a@x", "n")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := refresh.Parse(tok); !errors.Is(err, ErrWrongClass) {
		t.Fatalf("expected ErrWrongClass, got %v", err)
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	a := hsManager(t, ClassRefresh, "secret-a", time.Hour)
	b := hsManager(t, ClassRefresh, "secret-b", time.Hour)

	tok, _ := a.Sign("1", "a@x", "n")
	if _, err := b.Parse(tok); err == nil {
		t.Fatal("expected signature failure with foreign secret")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := hsManager(t, ClassAccess, "s", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	tok, _ := m.Sign("1", "a@x", "n")

	m.now = time.Now
	if _, err := m.Parse(tok); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRequiresExpiryAndNonce(t *testing.T) {
	m := hsManager(t, ClassAccess, "s", time.Minute)

	noExp := signRaw(t, gjwt.SigningMethodHS256, []byte("s"), Claims{
		Nonce: "n", Class: ClassAccess,
		RegisteredClaims: gjwt.RegisteredClaims{Subject: "1"},
	})
	if _, err := m.Parse(noExp); err == nil {
		t.Fatal("expected token without exp to fail")
	}

	noNonce := signRaw(t, gjwt.SigningMethodHS256, []byte("s"), Claims{
		Class: ClassAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	if _, err := m.Parse(noNonce); !errors.Is(err, ErrMissingClaims) {
		t.Fatalf("expected ErrMissingClaims, got %v", err)
	}
}

func TestSignRequiresSubjectAndNonce(t *testing.T) {
	m := hsManager(t, ClassAccess, "s", time.Minute)
	if _, err := m.Sign("", "a@x", "n"); !errors.Is(err, ErrMissingClaims) {
		t.Fatalf("expected ErrMissingClaims for empty subject, got %v", err)
	}
	if _, err := m.Sign("1", "a@x", ""); !errors.Is(err, ErrMissingClaims) {
		t.Fatalf("expected ErrMissingClaims for empty nonce, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := []Config{
		{Class: "bogus", TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("s")},
		{Class: ClassAccess, TTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("s")},
		{Class: ClassAccess, TTL: time.Minute, SigningMethod: MethodHS256},
		{Class: ClassAccess, TTL: time.Minute, SigningMethod: MethodEd25519},
		{Class: ClassAccess, TTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("s")},
		{Class: ClassAccess, TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("s"), Leeway: time.Hour},
		{Class: ClassAccess, TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, KeyID: "k9", VerifyKeys: map[string][]byte{"k1": pub}},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{Class: ClassAccess, TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token := signRaw(t, gjwt.SigningMethodHS256, []byte("secret-secret-secret-secret"), Claims{
		Nonce: "n", Class: ClassAccess,
		RegisteredClaims: gjwt.RegisteredClaims{Subject: "1", ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))},
	})
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		Class:         ClassAccess,
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "nonceauth",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.Sign("u", "a@x", "n")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := m.Parse(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	base := func(iss, aud string, exp, iat time.Duration) Claims {
		return Claims{Nonce: "n", Class: ClassAccess, RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(exp)),
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(iat)),
		}}
	}

	if _, err := m.Parse(signRaw(t, gjwt.SigningMethodEdDSA, priv, base("other", "api", time.Minute, 0))); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Parse(signRaw(t, gjwt.SigningMethodEdDSA, priv, base("nonceauth", "other-api", time.Minute, 0))); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Parse(signRaw(t, gjwt.SigningMethodEdDSA, priv, base("nonceauth", "api", -15*time.Second, -time.Minute))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.Parse(signRaw(t, gjwt.SigningMethodEdDSA, priv, base("nonceauth", "api", -2*time.Minute, -3*time.Minute))); err == nil {
		t.Fatal("expected expired token to fail")
	}
	if _, err := m.Parse(signRaw(t, gjwt.SigningMethodEdDSA, priv, base("nonceauth", "api", time.Hour, 30*time.Minute))); err == nil {
		t.Fatal("expected far-future iat to fail")
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		Class:         ClassRefresh,
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{Nonce: "n", Class: ClassRefresh, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, _ := tok.SignedString(priv1)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, err := m.Sign("u", "a@x", "n")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := m.Parse(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{Class: ClassRefresh, TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k1": pub2}})
	if _, err := m2.Parse(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}
