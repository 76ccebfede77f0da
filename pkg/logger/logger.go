package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger shared by every platform binary. Entries
// are emitted as JSON on stdout so the log pipeline can index them without
// per-service parsing rules.
type Logger struct {
	*logrus.Logger
}

// New builds a logger at the requested level. An unrecognized level falls
// back to info so a typo in configuration cannot silence a service.
func New(level string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat:   "2006-01-02T15:04:05.000Z07:00",
		DisableHTMLEscape: true,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	return &Logger{Logger: l}
}

// WithStage tags entries with the creation workflow stage that produced
// them: stored, billed, published or one of their failure variants.
func (l *Logger) WithStage(stage string) *logrus.Entry {
	return l.Logger.WithField("stage", stage)
}

// Audit records security-relevant actions: logins, routing table changes,
// record deletions. The actor is the authenticated user id, or empty when
// the action failed before a caller was identified.
func (l *Logger) Audit(actor, action, resource string, success bool, details map[string]interface{}) {
	fields := logrus.Fields{
		"audit":    true,
		"actor":    actor,
		"action":   action,
		"resource": resource,
		"success":  success,
	}
	if len(details) > 0 {
		fields["details"] = details
	}

	entry := l.Logger.WithFields(fields)
	if success {
		entry.Info("audit event")
	} else {
		entry.Warn("audit event")
	}
}

// HTTPRequest records one served request. Probe traffic against /health
// and /metrics is demoted to debug so it does not drown out real traffic.
func (l *Logger) HTTPRequest(method, path, clientIP string, status int, durationMS int64) {
	entry := l.Logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"client_ip":   clientIP,
		"status":      status,
		"duration_ms": durationMS,
	})

	switch {
	case status >= 500:
		entry.Error("request completed")
	case status >= 400:
		entry.Warn("request completed")
	case path == "/health" || path == "/metrics":
		entry.Debug("request completed")
	default:
		entry.Info("request completed")
	}
}
