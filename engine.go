package nonceauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/nigussolomon/nonceauth/internal/audit"
	"github.com/nigussolomon/nonceauth/internal/flows"
	"github.com/nigussolomon/nonceauth/jwt"
)

// Engine runs the token lifecycle: register, login, refresh, logout and
// access validation. Build one with New().
type Engine struct {
	config  Config
	access  *jwt.Manager
	refresh *jwt.Manager
	flows   flows.Deps

	logger  *slog.Logger
	audit   *internalaudit.Dispatcher
	metrics *Metrics
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Metrics returns the engine counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher queue was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}

// Register creates a user with no outstanding session. An existing
// identifier yields ErrUserExists and leaves the store untouched.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	res := flows.RunRegister(ctx, req.Identifier, req.Passkey, req.Attributes, e.flows.Register)

	switch res.Failure {
	case flows.RegisterFailureNone:
		e.metricInc(MetricRegisterSuccess)
		e.emitAudit(ctx, auditEventRegisterSuccess, true, res.Record.ID, req.Identifier, nil, nil)
		return userFromRecord(res.Record), nil
	case flows.RegisterFailureInvalidIdentifier:
		e.metricInc(MetricRegisterFailure)
		return nil, ErrIdentifierRequired
	case flows.RegisterFailureInvalidPasskey:
		e.metricInc(MetricRegisterFailure)
		return nil, ErrPasskeyPolicy
	case flows.RegisterFailureExists:
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", req.Identifier, ErrUserExists, nil)
		return nil, ErrUserExists
	default:
		e.metricInc(MetricRegisterFailure)
		e.logger.ErrorContext(ctx, "register failed", e.logAttrs(ctx, "register", "", res.Err)...)
		return nil, fmt.Errorf("nonceauth: register: %w", res.Err)
	}
}

// Login verifies the passkey and issues a new pair. Any previously issued
// tokens for the user stop verifying.
func (e *Engine) Login(ctx context.Context, creds Credentials) (*AuthTokens, error) {
	res := flows.RunLogin(ctx, creds.Identifier, creds.Passkey, e.flows.Login)

	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionIssued)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.Record.ID, creds.Identifier, nil, nil)
		return tokensFrom(res.Issue), nil
	case flows.LoginFailureUnknownIdentifier, flows.LoginFailureMismatch, flows.LoginFailureInactive, flows.LoginFailureVerify:
		e.metricInc(MetricLoginFailure)
		level := slog.LevelDebug
		if res.Failure == flows.LoginFailureVerify {
			level = slog.LevelWarn
		}
		e.logger.Log(ctx, level, "login rejected", append(e.logAttrs(ctx, "login", "", res.Err), slog.String("cause", loginCause(res.Failure)))...)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", creds.Identifier, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"cause": loginCause(res.Failure)}
		})
		return nil, ErrInvalidCredentials
	case flows.LoginFailureIssue:
		e.metricInc(MetricLoginFailure)
		return nil, e.issueError(ctx, "login", res.Record.ID, res.Issue)
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.ErrorContext(ctx, "login failed", e.logAttrs(ctx, "login", "", res.Err)...)
		return nil, fmt.Errorf("nonceauth: login: %w", res.Err)
	}
}

// Refresh exchanges a refresh token for a new pair. Each refresh token
// succeeds at most once; concurrent presentations of the same token yield
// exactly one winner.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)

	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.metricInc(MetricSessionIssued)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, "", nil, nil)
		return tokensFrom(res.Issue), nil

	case flows.RefreshFailureDecode, flows.RefreshFailureUserNotFound, flows.RefreshFailureNoSession,
		flows.RefreshFailureVerify, flows.RefreshFailureInactive:
		e.metricInc(MetricRefreshFailure)
		e.logger.DebugContext(ctx, "refresh rejected",
			append(e.logAttrs(ctx, "refresh", res.UserID, res.Err), slog.String("cause", refreshCause(res.Failure)))...)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"cause": refreshCause(res.Failure)}
		})
		return nil, ErrRefreshInvalid

	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		if res.Revoked {
			e.metricInc(MetricRefreshRevoked)
		}
		if res.Err != nil {
			e.logger.ErrorContext(ctx, "refresh reuse revoke failed", e.logAttrs(ctx, "refresh", res.UserID, res.Err)...)
		}
		e.logger.InfoContext(ctx, "refresh token reuse detected",
			append(e.logAttrs(ctx, "refresh", res.UserID, nil), slog.Bool("revoked", res.Revoked))...)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, "", ErrRefreshReused, func() map[string]string {
			return map[string]string{"revoked": fmt.Sprint(res.Revoked)}
		})
		return nil, ErrRefreshReused

	case flows.RefreshFailureRaceLost:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshRaceLost)
		e.logger.WarnContext(ctx, "refresh lost compare-and-swap on stored hash", e.logAttrs(ctx, "refresh", res.UserID, nil)...)
		e.emitAudit(ctx, auditEventRefreshRaceLost, false, res.UserID, "", ErrRefreshRaceLost, nil)
		return nil, ErrRefreshRaceLost

	case flows.RefreshFailureIssue:
		e.metricInc(MetricRefreshFailure)
		return nil, e.issueError(ctx, "refresh", res.UserID, res.Issue)

	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.ErrorContext(ctx, "refresh failed", e.logAttrs(ctx, "refresh", res.UserID, res.Err)...)
		return nil, fmt.Errorf("nonceauth: refresh: %w", res.Err)
	}
}

// Logout clears both stored nonce hashes for userID. It returns true on
// success and ErrLogoutFailed when no user row matched.
func (e *Engine) Logout(ctx context.Context, userID string) (bool, error) {
	res := flows.RunLogout(ctx, userID, e.flows.Logout)

	switch res.Failure {
	case flows.LogoutFailureNone:
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, userID, "", nil, nil)
		return true, nil
	case flows.LogoutFailureNoRow:
		e.metricInc(MetricLogoutFailure)
		e.logger.DebugContext(ctx, "logout matched no user", e.logAttrs(ctx, "logout", userID, nil)...)
		e.emitAudit(ctx, auditEventLogoutFailure, false, userID, "", ErrLogoutFailed, nil)
		return false, ErrLogoutFailed
	default:
		e.metricInc(MetricLogoutFailure)
		e.logger.ErrorContext(ctx, "logout failed", e.logAttrs(ctx, "logout", userID, res.Err)...)
		return false, fmt.Errorf("nonceauth: logout: %w", res.Err)
	}
}

// ValidateUser checks an already-verified access payload against the stored
// access nonce hash and returns the user it belongs to.
func (e *Engine) ValidateUser(ctx context.Context, payload AccessPayload) (*User, error) {
	start := time.Now()
	res := flows.RunValidate(ctx, payload.Subject, payload.Nonce, e.flows.Validate)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	return e.validateResult(ctx, payload.Subject, res)
}

// DecodeAccess verifies an access token's signature, expiry and class
// without consulting the store.
func (e *Engine) DecodeAccess(token string) (AccessPayload, error) {
	claims, err := e.access.Parse(token)
	if err != nil {
		return AccessPayload{}, ErrAccessInvalid
	}
	return PayloadFromClaims(claims), nil
}

// ValidateAccess parses a raw access token and then runs ValidateUser.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*User, error) {
	start := time.Now()
	res := flows.RunValidateToken(ctx, token, e.flows.Validate)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	return e.validateResult(ctx, "", res)
}

func (e *Engine) validateResult(ctx context.Context, subject string, res flows.ValidateResult) (*User, error) {
	switch res.Failure {
	case flows.ValidateFailureNone:
		e.metricInc(MetricValidateSuccess)
		return userFromRecord(res.Record), nil
	case flows.ValidateFailureLookup:
		e.metricInc(MetricValidateFailure)
		e.logger.ErrorContext(ctx, "validate failed", e.logAttrs(ctx, "validate", subject, res.Err)...)
		return nil, fmt.Errorf("nonceauth: validate: %w", res.Err)
	default:
		e.metricInc(MetricValidateFailure)
		e.logger.DebugContext(ctx, "access rejected",
			append(e.logAttrs(ctx, "validate", subject, res.Err), slog.String("cause", validateCause(res.Failure)))...)
		return nil, ErrAccessInvalid
	}
}

func (e *Engine) issueError(ctx context.Context, op, userID string, res flows.IssueResult) error {
	e.metricInc(MetricSessionIssueFailure)
	if res.Failure == flows.IssueFailureNoRow {
		e.logger.WarnContext(ctx, "session update matched no user", e.logAttrs(ctx, op, userID, nil)...)
		e.emitAudit(ctx, auditEventSessionUpdateFailed, false, userID, "", ErrSessionUpdateFailed, nil)
		return ErrSessionUpdateFailed
	}
	e.logger.ErrorContext(ctx, "token issuance failed", e.logAttrs(ctx, op, userID, res.Err)...)
	return fmt.Errorf("nonceauth: %s: issue tokens: %w", op, res.Err)
}

func (e *Engine) logAttrs(ctx context.Context, op, userID string, err error) []any {
	attrs := []any{slog.String("op", op)}
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if id := requestIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	return attrs
}

func tokensFrom(res flows.IssueResult) *AuthTokens {
	return &AuthTokens{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         userFromRecord(res.Record),
	}
}

func loginCause(kind flows.LoginFailureKind) string {
	switch kind {
	case flows.LoginFailureUnknownIdentifier:
		return "unknown_identifier"
	case flows.LoginFailureMismatch:
		return "passkey_mismatch"
	case flows.LoginFailureInactive:
		return "inactive"
	case flows.LoginFailureVerify:
		return "stored_hash_unreadable"
	default:
		return "other"
	}
}

func refreshCause(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureDecode:
		return "token_invalid"
	case flows.RefreshFailureUserNotFound:
		return "user_not_found"
	case flows.RefreshFailureNoSession:
		return "no_session"
	case flows.RefreshFailureVerify:
		return "stored_hash_unreadable"
	case flows.RefreshFailureInactive:
		return "inactive"
	default:
		return "other"
	}
}

func validateCause(kind flows.ValidateFailureKind) string {
	switch kind {
	case flows.ValidateFailureDecode:
		return "token_invalid"
	case flows.ValidateFailureUserNotFound:
		return "user_not_found"
	case flows.ValidateFailureNoSession:
		return "no_session"
	case flows.ValidateFailureMismatch:
		return "nonce_mismatch"
	case flows.ValidateFailureInactive:
		return "inactive"
	case flows.ValidateFailureVerify:
		return "stored_hash_unreadable"
	default:
		return "other"
	}
}
