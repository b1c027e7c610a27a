package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	TenantID string         `json:"tenantId"`
	ActorID  string         `json:"actorId"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditWriter persists audit entries.
type AuditWriter interface {
	WriteAudit(ctx context.Context, log AuditLog) error
}

// AuditLogger records audit entries after the primary operation committed.
// Failures are logged and returned; callers discard them.
type AuditLogger struct {
	writer AuditWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(writer AuditWriter, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{writer: writer, logger: logger, now: time.Now}
}

// Record persists the log entry. A nil logger records nothing.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.writer == nil {
		return nil
	}
	if log.TenantID == "" || log.Action == "" || log.Entity == "" || log.EntityID == "" {
		err := errors.New("audit log requires tenant/action/entity/entity_id")
		l.logger.Warn("audit record rejected", slog.Any("error", err), slog.String("action", log.Action))
		return err
	}
	if log.ActorID == "" {
		if p, ok := PrincipalFromContext(ctx); ok {
			log.ActorID = p.UserID
		}
	}
	if log.At.IsZero() {
		log.At = l.now().UTC()
	}
	if err := l.writer.WriteAudit(ctx, log); err != nil {
		l.logger.Warn("audit record failed",
			slog.Any("error", err),
			slog.String("tenant", log.TenantID),
			slog.String("action", log.Action),
			slog.String("entity", log.Entity),
			slog.String("entity_id", log.EntityID))
		return err
	}
	return nil
}
