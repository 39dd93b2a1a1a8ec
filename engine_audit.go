package nonceauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterDuplicate    = "register_duplicate"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventRefreshRaceLost      = "refresh_race_lost"
	auditEventSessionUpdateFailed  = "session_update_failed"
	auditEventLogout               = "logout"
	auditEventLogoutFailure        = "logout_failure"
)

// AuditErrorCode is the stable error label written into AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrRefreshReuse        AuditErrorCode = "refresh_reuse"
	auditErrRefreshRace         AuditErrorCode = "refresh_race"
	auditErrSessionUpdateFailed AuditErrorCode = "session_update_failed"
	auditErrLogoutFailed        AuditErrorCode = "logout_failed"
	auditErrInvalidInput        AuditErrorCode = "invalid_input"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	identifier string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		UserID:     userID,
		Identifier: identifier,
		RequestID:  requestIDFromContext(ctx),
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUserExists):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRefreshReused):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshRaceLost):
		return auditErrRefreshRace
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrAccessInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionUpdateFailed):
		return auditErrSessionUpdateFailed
	case errors.Is(err, ErrLogoutFailed):
		return auditErrLogoutFailed
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	default:
		return auditErrInternal
	}
}
