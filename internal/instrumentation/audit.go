package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/agenda/internal/logging"
)

// Account lifecycle actions recorded in the audit log.
const (
	ActionLogin     = "login"
	ActionReconnect = "reconnect"
	ActionRemove    = "remove"
	ActionSync      = "calendar_sync"
	ActionToggle    = "calendar_toggle"
)

// AccountChange captures one user-initiated change to the connected accounts.
//
// The Email field contains PII. It is only written in full when the
// AuditLogger is configured with IncludePII.
type AccountChange struct {
	Action    string
	AccountID string
	Email     string
	// CalendarID is set for calendar toggles.
	CalendarID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewAccountChange creates an AccountChange with timing started.
// Call Complete when the operation finishes.
func NewAccountChange(action string) *AccountChange {
	return &AccountChange{
		Action:    action,
		StartTime: time.Now(),
	}
}

// WithAccount sets the account identity.
func (ac *AccountChange) WithAccount(id, email string) *AccountChange {
	ac.AccountID = id
	ac.Email = email
	return ac
}

// WithCalendar sets the calendar the change applies to.
func (ac *AccountChange) WithCalendar(calendarID string) *AccountChange {
	ac.CalendarID = calendarID
	return ac
}

// WithSpanContext extracts trace context from the current span.
func (ac *AccountChange) WithSpanContext(ctx context.Context) *AccountChange {
	ac.TraceID = GetTraceID(ctx)
	ac.SpanID = GetSpanID(ctx)
	return ac
}

// Complete marks the change as finished. A nil err means success.
func (ac *AccountChange) Complete(err error) *AccountChange {
	ac.Duration = time.Since(ac.StartTime)
	ac.Success = err == nil
	if err != nil {
		ac.Error = err.Error()
	}
	return ac
}

// Status returns "success" or "error" based on the Success field.
func (ac *AccountChange) Status() string {
	if ac.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for the change. The email is anonymized
// unless includePII is set.
func (ac *AccountChange) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", ac.Action),
		slog.Duration("duration", ac.Duration),
		slog.Bool("success", ac.Success),
	}

	if ac.AccountID != "" {
		attrs = append(attrs, slog.String("account", ac.AccountID))
	}
	if ac.Email != "" {
		if includePII {
			attrs = append(attrs, slog.String("user", ac.Email))
		} else {
			attrs = append(attrs, logging.UserHash(ac.Email))
			attrs = append(attrs, slog.String("user_domain", ExtractUserDomain(ac.Email)))
		}
	}
	if ac.CalendarID != "" {
		attrs = append(attrs, slog.String("calendar", ac.CalendarID))
	}
	if ac.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ac.TraceID))
	}
	if ac.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ac.SpanID))
	}
	if ac.Error != "" {
		attrs = append(attrs, slog.String("error", ac.Error))
	}

	return attrs
}

// AuditLogger writes account lifecycle changes to a dedicated slog stream.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes the change. Failed changes are logged at warn level.
func (al *AuditLogger) Log(ac *AccountChange) {
	if al == nil || !al.enabled {
		return
	}

	attrs := ac.LogAttrs(al.includePII)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ac.Success {
		al.logger.Info("account_changed", args...)
	} else {
		al.logger.Warn("account_change_failed", args...)
	}
}
