package nonceauth

import (
	"context"
	"testing"
	"time"

	"github.com/nigussolomon/nonceauth/store/memstore"
)

func newAuditEngine(t *testing.T, cfg Config) (*Engine, *ChannelSink) {
	t.Helper()
	sink := NewChannelSink(64)
	engine, err := New().WithConfig(cfg).WithStore(memstore.New()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, sink
}

func nextEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditLifecycleEvents(t *testing.T) {
	engine, sink := newAuditEngine(t, testConfig())
	ctx := WithClientIP(WithRequestID(context.Background(), "req-1"), "10.0.0.1")

	user, err := engine.Register(ctx, RegisterRequest{Identifier: "a@x.com", Passkey: "pw1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	ev := nextEvent(t, sink)
	if ev.EventType != auditEventRegisterSuccess || !ev.Success || ev.UserID != user.ID {
		t.Fatalf("unexpected register event %+v", ev)
	}
	if ev.RequestID != "req-1" || ev.IP != "10.0.0.1" {
		t.Fatalf("request metadata not propagated: %+v", ev)
	}

	tokens, err := engine.Login(ctx, Credentials{Identifier: "a@x.com", Passkey: "pw1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != auditEventLoginSuccess {
		t.Fatalf("expected login success, got %+v", ev)
	}

	if _, err := engine.Refresh(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != auditEventRefreshSuccess {
		t.Fatalf("expected refresh success, got %+v", ev)
	}

	if _, err := engine.Refresh(ctx, tokens.RefreshToken); err == nil {
		t.Fatal("expected replay to fail")
	}
	ev = nextEvent(t, sink)
	if ev.EventType != auditEventRefreshReuseDetected || ev.Success || ev.Error != string(auditErrRefreshReuse) {
		t.Fatalf("unexpected reuse event %+v", ev)
	}
	if ev.Metadata["revoked"] != "false" {
		t.Fatalf("expected revoked=false metadata, got %v", ev.Metadata)
	}

	if _, err := engine.Logout(ctx, user.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != auditEventLogout || ev.UserID != user.ID {
		t.Fatalf("unexpected logout event %+v", ev)
	}
}

func TestAuditLoginFailureHidesCause(t *testing.T) {
	engine, sink := newAuditEngine(t, testConfig())
	ctx := context.Background()

	if _, err := engine.Login(ctx, Credentials{Identifier: "ghost@x.com", Passkey: "pw1"}); err == nil {
		t.Fatal("expected login failure")
	}
	ev := nextEvent(t, sink)
	if ev.EventType != auditEventLoginFailure || ev.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Metadata["cause"] != "unknown_identifier" {
		t.Fatalf("expected cause metadata, got %v", ev.Metadata)
	}
}

func TestAuditDisabledWithoutSink(t *testing.T) {
	engine := newTestEngine(t, testConfig(), memstore.New())
	registerAndLogin(t, engine, "a@x.com")
	if engine.AuditDropped() != 0 {
		t.Fatal("disabled audit must not count drops")
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := map[error]AuditErrorCode{
		nil:                    "",
		ErrUserExists:          auditErrDuplicate,
		ErrInvalidCredentials:  auditErrInvalidCredentials,
		ErrRefreshReused:       auditErrRefreshReuse,
		ErrRefreshRaceLost:     auditErrRefreshRace,
		ErrRefreshInvalid:      auditErrInvalidToken,
		ErrAccessInvalid:       auditErrInvalidToken,
		ErrSessionUpdateFailed: auditErrSessionUpdateFailed,
		ErrLogoutFailed:        auditErrLogoutFailed,
		ErrPasskeyPolicy:       auditErrInvalidInput,
		context.Canceled:       auditErrInternal,
	}
	for err, want := range tests {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}
