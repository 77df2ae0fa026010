// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/dalemusser/eldercircle/internal/app/store/audit"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Link controls logging for link lifecycle events (register, approve, reject, unlink).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Link string
	// Auth controls logging for authentication events (login, logout).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// first hop is the client
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// requestID returns the inbound X-Request-ID or a fresh one.
func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-ID")); id != "" {
		return id
	}
	return uuid.NewString()
}

func fromRequest(r *http.Request, e audit.Event) audit.Event {
	e.IP = getClientIP(r)
	e.UserAgent = r.UserAgent()
	e.RequestID = requestID(r)
	return e
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ElderID != nil {
		fields = append(fields, zap.String("elder_id", event.ElderID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// A nil Logger is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryLink:
		setting = l.config.Link
	case audit.CategoryAuth:
		setting = l.config.Auth
	default:
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Link Events ---

// ElderRegistered logs a new elder account.
func (l *Logger) ElderRegistered(ctx context.Context, r *http.Request, elderID primitive.ObjectID) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryLink,
		EventType: audit.EventElderRegistered,
		UserID:    &elderID,
		ElderID:   &elderID,
		ActorID:   &elderID,
		Success:   true,
	}))
}

// FamilyRegistered logs a family member joining an elder's pending list.
func (l *Logger) FamilyRegistered(ctx context.Context, r *http.Request, familyID, elderID primitive.ObjectID, relation string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryLink,
		EventType: audit.EventFamilyRegistered,
		UserID:    &familyID,
		ElderID:   &elderID,
		ActorID:   &familyID,
		Success:   true,
		Details: map[string]string{
			"relation": relation,
		},
	}))
}

// LinkRequested logs an existing family account asking to join an elder's circle.
func (l *Logger) LinkRequested(ctx context.Context, r *http.Request, familyID, elderID primitive.ObjectID) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryLink,
		EventType: audit.EventLinkRequested,
		UserID:    &familyID,
		ElderID:   &elderID,
		ActorID:   &familyID,
		Success:   true,
	}))
}

// RegisterFailed logs a rejected registration attempt.
func (l *Logger) RegisterFailed(ctx context.Context, r *http.Request, userType, reason string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryLink,
		EventType:     audit.EventRegisterFailed,
		Success:       false,
		FailureReason: reason,
		Details: map[string]string{
			"user_type": userType,
		},
	}))
}

// FamilyApproved logs an elder approving a family member.
func (l *Logger) FamilyApproved(ctx context.Context, r *http.Request, elderID, familyID primitive.ObjectID) {
	l.linkAction(ctx, r, audit.EventFamilyApproved, elderID, familyID)
}

// FamilyRejected logs an elder rejecting a pending family member.
func (l *Logger) FamilyRejected(ctx context.Context, r *http.Request, elderID, familyID primitive.ObjectID) {
	l.linkAction(ctx, r, audit.EventFamilyRejected, elderID, familyID)
}

// FamilyUnlinked logs an elder removing a family member from their circle.
func (l *Logger) FamilyUnlinked(ctx context.Context, r *http.Request, elderID, familyID primitive.ObjectID) {
	l.linkAction(ctx, r, audit.EventFamilyUnlinked, elderID, familyID)
}

func (l *Logger) linkAction(ctx context.Context, r *http.Request, eventType string, elderID, familyID primitive.ObjectID) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryLink,
		EventType: eventType,
		UserID:    &familyID,
		ElderID:   &elderID,
		ActorID:   &elderID,
		Success:   true,
	}))
}

// --- Authentication Events ---

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, email, userType string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		Success:   true,
		Details: map[string]string{
			"email":     email,
			"user_type": userType,
		},
	}))
}

// LoginFailed logs a failed login attempt.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, attemptedEmail, reason string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailed,
		Success:       false,
		FailureReason: reason,
		Details: map[string]string{
			"attempted_email": attemptedEmail,
		},
	}))
}

// Logout logs a user logout.
// Accepts the string ID from SessionUser.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userIDStr string) {
	var userID *primitive.ObjectID
	if oid, err := primitive.ObjectIDFromHex(userIDStr); err == nil {
		userID = &oid
	}

	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    userID,
		Success:   true,
	}))
}

// ProfileUpdated logs a change to a user's contact fields.
func (l *Logger) ProfileUpdated(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventProfileUpdated,
		UserID:    &userID,
		Success:   true,
	}))
}

// PasswordChanged logs a password change.
func (l *Logger) PasswordChanged(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventPasswordChanged,
		UserID:    &userID,
		Success:   true,
	}))
}

// PasswordChangeFailed logs a rejected password change.
func (l *Logger) PasswordChangeFailed(ctx context.Context, r *http.Request, userID primitive.ObjectID, reason string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventPasswordChangeFailed,
		UserID:        &userID,
		Success:       false,
		FailureReason: reason,
	}))
}
