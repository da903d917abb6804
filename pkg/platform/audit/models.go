package audit

import (
	"context"
	"time"
)

//go:generate mockgen -source=models.go -destination=mocks/mocks.go -package=mocks Emitter,Sink

// AuditEvent names a security-relevant action taken by the login flow.
type AuditEvent string

const (
	EventLoginSucceeded  AuditEvent = "login_succeeded"
	EventAuthFailed      AuditEvent = "auth_failed"
	EventLoggedOut       AuditEvent = "logged_out"
	EventInvalidToken    AuditEvent = "invalid_identity_token"
	EventUnsafeRedirect  AuditEvent = "unsafe_redirect_rejected"
	EventSSOHandshake    AuditEvent = "sso_handshake"
	EventSSOSigMismatch  AuditEvent = "sso_signature_mismatch"
	EventAuthTokenRotate AuditEvent = "auth_token_rotated"
)

// Severity levels for SIEM routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var eventSeverities = map[AuditEvent]Severity{
	EventAuthFailed:     SeverityWarning,
	EventInvalidToken:   SeverityWarning,
	EventUnsafeRedirect: SeverityWarning,
	EventSSOSigMismatch: SeverityCritical,
}

// Severity returns the default severity for the event. Unknown events are informational.
func (e AuditEvent) Severity() Severity {
	if sev, ok := eventSeverities[e]; ok {
		return sev
	}
	return SeverityInfo
}

// SecurityEvent captures one security-relevant action for forensics and alerting.
type SecurityEvent struct {
	Timestamp time.Time `json:"ts"`
	Subject   string    `json:"subject"` // user id or email, never a credential
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Device    string    `json:"device,omitempty"` // browser/OS label derived from User-Agent
	RequestID string    `json:"request_id,omitempty"`
	Severity  Severity  `json:"severity"`
}

// Emitter is what domain services depend on. Emission never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, event SecurityEvent)
}

// Sink persists or forwards a batch of events.
type Sink interface {
	Write(ctx context.Context, events []SecurityEvent) error
}
