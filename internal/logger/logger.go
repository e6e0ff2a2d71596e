package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// ErrorObject carries the failure and its stack on ERROR lines.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// LogEntry is the single-line JSON format every service writes to stdout.
type LogEntry struct {
	Timestamp   string       `json:"timestamp"`
	Level       string       `json:"level"` // DEBUG | INFO | ERROR
	Service     string       `json:"service"`
	Action      string       `json:"action"` // event name, e.g. alert_broadcast
	Message     string       `json:"message"`
	Hostname    string       `json:"hostname"`
	RequestID   string       `json:"request_id,omitempty"`
	EmergencyID string       `json:"emergency_id,omitempty"`
	Details     any          `json:"details,omitempty"`
	Error       *ErrorObject `json:"error,omitempty"`
}

// Logger writes structured single-line JSON. It carries request and
// emergency ids through context so every layer logs the same correlation
// fields without threading them explicitly.
type Logger struct {
	service  string
	hostname string

	mu  sync.Mutex
	out io.Writer
}

func New(service string) *Logger {
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}
	hostname, err := os.Hostname()
	if err != nil || strings.TrimSpace(hostname) == "" {
		hostname = "unknown-hostname"
	}
	return &Logger{service: service, hostname: hostname, out: os.Stdout}
}

// NewWithOutput is New with the destination overridden. Tests use it to
// capture log lines.
func NewWithOutput(service string, w io.Writer) *Logger {
	l := New(service)
	l.out = w
	return l
}

func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.write(ctx, "DEBUG", action, msg, details, nil)
}

func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.write(ctx, "INFO", action, msg, details, nil)
}

// Error attaches the error message and a stack trace to the line.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	l.write(ctx, "ERROR", action, msg, details, &ErrorObject{
		Msg:   strings.TrimSpace(err.Error()),
		Stack: string(debug.Stack()),
	})
}

func (l *Logger) write(ctx context.Context, level, action, msg string, details any, errObj *ErrorObject) {
	action = strings.TrimSpace(action)
	if action == "" {
		action = "unspecified"
	}

	entry := LogEntry{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Level:       level,
		Service:     l.service,
		Action:      action,
		Message:     strings.TrimSpace(msg),
		Hostname:    l.hostname,
		RequestID:   fromContext(ctx, requestIDKey),
		EmergencyID: fromContext(ctx, emergencyIDKey),
		Details:     details,
		Error:       errObj,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		// details are the only field that can fail to marshal
		entry.Details = map[string]any{"marshal_error": err.Error()}
		if line, err = json.Marshal(entry); err != nil {
			fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
			return
		}
	}

	l.mu.Lock()
	fmt.Fprintln(l.out, string(line))
	l.mu.Unlock()
}

// ----- context plumbing -----

type ctxKey string

const (
	requestIDKey   ctxKey = "meditrack_request_id"
	emergencyIDKey ctxKey = "meditrack_emergency_id"
)

// WithRequestID returns a context carrying request_id for log correlation.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, reqID)
}

// WithEmergencyID returns a context carrying the emergency request id.
func (l *Logger) WithEmergencyID(ctx context.Context, emergencyID string) context.Context {
	if strings.TrimSpace(emergencyID) == "" {
		return ctx
	}
	return context.WithValue(ctx, emergencyIDKey, emergencyID)
}

func fromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}
