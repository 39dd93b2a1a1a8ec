package nonceauth

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nigussolomon/nonceauth/credential"
	"github.com/nigussolomon/nonceauth/jwt"
	"github.com/nigussolomon/nonceauth/store/memstore"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = "access-secret-for-tests-0123456789"
	cfg.JWT.RefreshSecret = "refresh-secret-for-tests-0123456789"
	cfg.Password.Algorithm = AlgorithmBcrypt
	cfg.Password.BcryptCost = 4
	cfg.Password.NonceAlgorithm = AlgorithmSHA256
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, store credential.Store) *Engine {
	t.Helper()
	engine, err := New().WithConfig(cfg).WithStore(store).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func registerAndLogin(t *testing.T, engine *Engine, identifier string) (*User, *AuthTokens) {
	t.Helper()
	ctx := context.Background()
	user, err := engine.Register(ctx, RegisterRequest{Identifier: identifier, Passkey: "pw1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	tokens, err := engine.Login(ctx, Credentials{Identifier: identifier, Passkey: "pw1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return user, tokens
}

func TestRotationScenario(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())

	user, t0 := registerAndLogin(t, engine, "a@x.com")
	if t0.User == nil || t0.User.ID != user.ID || t0.User.Identifier != "a@x.com" {
		t.Fatalf("login must return the user, got %+v", t0.User)
	}

	t1, err := engine.Refresh(ctx, t0.RefreshToken)
	if err != nil {
		t.Fatalf("refresh T0: %v", err)
	}
	if t1.User == nil || t1.User.ID != user.ID {
		t.Fatalf("refresh must return the user, got %+v", t1.User)
	}
	if _, err := engine.Refresh(ctx, t0.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected replayed T0 to fail Unauthorized, got %v", err)
	}

	t2, err := engine.Refresh(ctx, t1.RefreshToken)
	if err != nil {
		t.Fatalf("refresh T1: %v", err)
	}

	ok, err := engine.Logout(ctx, user.ID)
	if err != nil || !ok {
		t.Fatalf("Logout: ok=%v err=%v", ok, err)
	}
	if _, err := engine.Refresh(ctx, t2.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected refresh after logout to fail Unauthorized, got %v", err)
	}
}

func TestRegisterReturnsUserWithoutSession(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, testConfig(), store)

	user, err := engine.Register(ctx, RegisterRequest{
		Identifier: "a@x.com",
		Passkey:    "pw1",
		Attributes: map[string]string{"name": "Ann"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == "" || user.Identifier != "a@x.com" || user.Attributes["name"] != "Ann" || !user.Active {
		t.Fatalf("unexpected user %+v", user)
	}

	rec, err := store.FindByID(ctx, user.ID, credential.FieldPasswordHash, credential.FieldRefreshNonceHash, credential.FieldAccessNonceHash)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if rec.PasswordHash == "" || rec.PasswordHash == "pw1" {
		t.Fatalf("expected hashed passkey, got %q", rec.PasswordHash)
	}
	if rec.RefreshNonceHash != "" || rec.AccessNonceHash != "" {
		t.Fatalf("new user must have no session, got %+v", rec)
	}
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())

	if _, err := engine.Register(ctx, RegisterRequest{Identifier: "a@x.com", Passkey: "pw1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := engine.Register(ctx, RegisterRequest{Identifier: "a@x.com", Passkey: "other"})
	if !errors.Is(err, ErrUserExists) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	// The original passkey still works.
	if _, err := engine.Login(ctx, Credentials{Identifier: "a@x.com", Passkey: "pw1"}); err != nil {
		t.Fatalf("Login after duplicate register: %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())

	if _, err := engine.Register(ctx, RegisterRequest{Identifier: "", Passkey: "pw1"}); !errors.Is(err, ErrIdentifierRequired) {
		t.Fatalf("expected ErrIdentifierRequired, got %v", err)
	}
	if _, err := engine.Register(ctx, RegisterRequest{Identifier: "a@x.com", Passkey: ""}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())
	registerAndLogin(t, engine, "a@x.com")

	_, unknownErr := engine.Login(ctx, Credentials{Identifier: "nobody@x.com", Passkey: "pw1"})
	_, wrongErr := engine.Login(ctx, Credentials{Identifier: "a@x.com", Passkey: "nope"})

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("messages differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestLoginInvalidatesPreviousPair(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())
	_, first := registerAndLogin(t, engine, "a@x.com")

	second, err := engine.Login(ctx, Credentials{Identifier: "a@x.com", Passkey: "pw1"})
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}

	if _, err := engine.ValidateAccess(ctx, first.AccessToken); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected old access token rejected, got %v", err)
	}
	if _, err := engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old refresh token rejected, got %v", err)
	}
	user, err := engine.ValidateAccess(ctx, second.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess(second): %v", err)
	}
	if user.Identifier != "a@x.com" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestRefreshRotatesAccessToken(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())
	_, t0 := registerAndLogin(t, engine, "a@x.com")

	t1, err := engine.Refresh(ctx, t0.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if t1.AccessToken == t0.AccessToken || t1.RefreshToken == t0.RefreshToken {
		t.Fatal("expected a fresh pair")
	}
	if _, err := engine.ValidateAccess(ctx, t0.AccessToken); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected T0 access rejected after refresh, got %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, t1.AccessToken); err != nil {
		t.Fatalf("ValidateAccess(T1): %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())
	_, tokens := registerAndLogin(t, engine, "a@x.com")

	if _, err := engine.Refresh(ctx, tokens.AccessToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected access token rejected as refresh, got %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, tokens.RefreshToken); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected refresh token rejected as access, got %v", err)
	}
	if _, err := engine.Refresh(ctx, "not-a-jwt"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected garbage rejected, got %v", err)
	}
}

func TestRefreshReuseRevokesWhenConfigured(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Session.RevokeOnRefreshReuse = true
	engine := newTestEngine(t, cfg, memstore.New())
	_, t0 := registerAndLogin(t, engine, "a@x.com")

	t1, err := engine.Refresh(ctx, t0.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := engine.Refresh(ctx, t0.RefreshToken); !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("expected ErrRefreshReused, got %v", err)
	}

	if _, err := engine.ValidateAccess(ctx, t1.AccessToken); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected T1 access revoked, got %v", err)
	}
	if _, err := engine.Refresh(ctx, t1.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected T1 refresh revoked, got %v", err)
	}
	if got := engine.Metrics().Value(MetricRefreshRevoked); got != 1 {
		t.Fatalf("expected 1 revoked, got %d", got)
	}
}

func TestRefreshReuseKeepsSessionByDefault(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())
	_, t0 := registerAndLogin(t, engine, "a@x.com")

	t1, err := engine.Refresh(ctx, t0.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := engine.Refresh(ctx, t0.RefreshToken); !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("expected ErrRefreshReused, got %v", err)
	}
	if _, err := engine.Refresh(ctx, t1.RefreshToken); err != nil {
		t.Fatalf("expected T1 still valid, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())
	user, tokens := registerAndLogin(t, engine, "a@x.com")

	if ok, err := engine.Logout(ctx, user.ID); err != nil || !ok {
		t.Fatalf("Logout: ok=%v err=%v", ok, err)
	}
	if _, err := engine.ValidateAccess(ctx, tokens.AccessToken); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected access rejected after logout, got %v", err)
	}

	// Logging out twice still matches the row.
	if ok, err := engine.Logout(ctx, user.ID); err != nil || !ok {
		t.Fatalf("second Logout: ok=%v err=%v", ok, err)
	}

	ok, err := engine.Logout(ctx, "does-not-exist")
	if ok || !errors.Is(err, ErrLogoutFailed) {
		t.Fatalf("expected ErrLogoutFailed, got ok=%v err=%v", ok, err)
	}
}

func TestValidateUserWithDecodedPayload(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), memstore.New())
	user, tokens := registerAndLogin(t, engine, "a@x.com")

	payload, err := engine.DecodeAccess(tokens.AccessToken)
	if err != nil {
		t.Fatalf("DecodeAccess: %v", err)
	}
	if payload.Subject != user.ID || payload.Identifier != "a@x.com" || payload.Nonce == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	got, err := engine.ValidateUser(ctx, payload)
	if err != nil {
		t.Fatalf("ValidateUser: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, got.ID)
	}

	payload.Nonce = "forged"
	if _, err := engine.ValidateUser(ctx, payload); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected forged nonce rejected, got %v", err)
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.JWT.AccessTTL = time.Millisecond
	engine := newTestEngine(t, cfg, memstore.New())
	_, tokens := registerAndLogin(t, engine, "a@x.com")

	time.Sleep(1100 * time.Millisecond)
	if _, err := engine.ValidateAccess(ctx, tokens.AccessToken); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected expired access rejected, got %v", err)
	}
}

// zeroRowStore makes every session write miss, as if the row vanished
// between lookup and update.
// deactivatingStore flips every record to inactive once off is set.
type deactivatingStore struct {
	*memstore.Store
	off bool
}

func (s *deactivatingStore) FindByID(ctx context.Context, id string, include ...credential.Field) (*credential.Record, error) {
	rec, err := s.Store.FindByID(ctx, id, include...)
	if err == nil && s.off {
		rec.Active = false
	}
	return rec, err
}

func (s *deactivatingStore) FindByIdentifier(ctx context.Context, identifier string, include ...credential.Field) (*credential.Record, error) {
	rec, err := s.Store.FindByIdentifier(ctx, identifier, include...)
	if err == nil && s.off {
		rec.Active = false
	}
	return rec, err
}

func TestInactiveUserIsRefusedEverywhere(t *testing.T) {
	ctx := context.Background()
	store := &deactivatingStore{Store: memstore.New()}
	engine := newTestEngine(t, testConfig(), store)

	_, tokens := registerAndLogin(t, engine, "a@x.com")
	store.off = true

	if _, err := engine.Login(ctx, Credentials{Identifier: "a@x.com", Passkey: "pw1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected login to fail for inactive user, got %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, tokens.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected validate to fail for inactive user, got %v", err)
	}
	pair, err := engine.Refresh(ctx, tokens.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) || pair != nil {
		t.Fatalf("expected ErrRefreshInvalid and no pair, got %+v %v", pair, err)
	}

	// Reactivation restores the untouched session.
	store.off = false
	if _, err := engine.Refresh(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("refresh after reactivation: %v", err)
	}
}

type zeroRowStore struct {
	credential.Store
}

func (zeroRowStore) UpdateSession(context.Context, string, credential.SessionUpdate) (int64, error) {
	return 0, nil
}

func TestLoginSessionUpdateFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, testConfig(), zeroRowStore{Store: store})

	if _, err := engine.Register(ctx, RegisterRequest{Identifier: "a@x.com", Passkey: "pw1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := engine.Login(ctx, Credentials{Identifier: "a@x.com", Passkey: "pw1"})
	if !errors.Is(err, ErrSessionUpdateFailed) {
		t.Fatalf("expected ErrSessionUpdateFailed, got %v", err)
	}
	if got := engine.Metrics().Value(MetricSessionIssueFailure); got != 1 {
		t.Fatalf("expected 1 issue failure, got %d", got)
	}
}

func TestOverLengthPasskeyIsPlainMismatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Password.Algorithm = AlgorithmArgon2id
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Password.MaxLength = 32

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine, err := New().WithConfig(cfg).WithStore(memstore.New()).WithLogger(logger).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Register(ctx, RegisterRequest{Identifier: "a@x.com", Passkey: "pw1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err = engine.Login(ctx, Credentials{Identifier: "a@x.com", Passkey: strings.Repeat("x", 33)})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if strings.Contains(logs.String(), "stored_hash_unreadable") || strings.Contains(logs.String(), `"level":"WARN"`) {
		t.Fatalf("over-length passkey must not be logged as a hash fault: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "passkey_mismatch") {
		t.Fatalf("expected a passkey_mismatch rejection, got %s", logs.String())
	}
}

type failingStore struct {
	credential.Store
	err error
}

func (s failingStore) FindByIdentifier(context.Context, string, ...credential.Field) (*credential.Record, error) {
	return nil, s.err
}

func TestStoreErrorsSurfaceWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	engine := newTestEngine(t, testConfig(), failingStore{Store: memstore.New(), err: boom})

	_, err := engine.Login(context.Background(), Credentials{Identifier: "a@x.com", Passkey: "pw1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if KindOf(err) != nil {
		t.Fatalf("infrastructure errors must not carry a kind, got %v", KindOf(err))
	}
}

func TestEd25519Engine(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.JWT.SigningMethod = string(jwt.MethodEd25519)
	cfg.JWT.AccessSecret = ""
	cfg.JWT.RefreshSecret = ""
	cfg.JWT.PublicKey, cfg.JWT.PrivateKey = mustEd25519(t)

	engine := newTestEngine(t, cfg, memstore.New())
	_, tokens := registerAndLogin(t, engine, "a@x.com")

	if _, err := engine.ValidateAccess(ctx, tokens.AccessToken); err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if _, err := engine.Refresh(ctx, tokens.AccessToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected access token rejected by refresh class, got %v", err)
	}
	if _, err := engine.Refresh(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func mustEd25519(t *testing.T) (pub []byte, priv []byte) {
	t.Helper()
	p, k, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return p, k
}
