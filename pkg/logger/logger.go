package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with domain helpers
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance
func New() *Logger {
	return NewWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"))
}

// NewWithWriter builds a logger on w. Text output in gin debug mode, JSON otherwise.
func NewWithWriter(w io.Writer, levelStr string) *Logger {
	level := getLogLevel(levelStr)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewNop discards everything
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("request_id", requestID))}
}

// WithComponent tags every record with the emitting component
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", component))}
}

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// LogHTTPError logs an HTTP error
func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	l.Logger.ErrorContext(c.Request.Context(),
		"HTTP Error",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
	)
}

// Business logging methods

func (l *Logger) LogSeatsHeld(ctx context.Context, attendeeID, eventID string, reservationIDs []string, expiresAt time.Time) {
	l.Logger.InfoContext(ctx,
		"Seats Held",
		slog.String("attendee_id", attendeeID),
		slog.String("event_id", eventID),
		slog.Any("reservation_ids", reservationIDs),
		slog.Time("expires_at", expiresAt),
	)
}

func (l *Logger) LogHoldConflict(ctx context.Context, attendeeID, seatID, reason string) {
	l.Logger.InfoContext(ctx,
		"Hold Conflict",
		slog.String("attendee_id", attendeeID),
		slog.String("event_seat_id", seatID),
		slog.String("reason", reason),
	)
}

func (l *Logger) LogPurchaseInitiated(ctx context.Context, attendeeID, eventID, intentID, idempotencyKey string, amountMinor int64) {
	l.Logger.InfoContext(ctx,
		"Purchase Initiated",
		slog.String("attendee_id", attendeeID),
		slog.String("event_id", eventID),
		slog.String("payment_intent_id", intentID),
		slog.String("idempotency_key", idempotencyKey),
		slog.Int64("amount_minor", amountMinor),
	)
}

func (l *Logger) LogTicketsIssued(ctx context.Context, paymentID, intentID string, tickets int) {
	l.Logger.InfoContext(ctx,
		"Tickets Issued",
		slog.String("payment_id", paymentID),
		slog.String("payment_intent_id", intentID),
		slog.Int("tickets", tickets),
	)
}

// LogAnomaly records a condition that needs reconciliation by an operator
func (l *Logger) LogAnomaly(ctx context.Context, kind, paymentID, seatID, detail string) {
	l.Logger.WarnContext(ctx,
		"Finalization Anomaly",
		slog.String("kind", kind),
		slog.String("payment_id", paymentID),
		slog.String("event_seat_id", seatID),
		slog.String("detail", detail),
	)
}

func (l *Logger) LogRefund(ctx context.Context, refundID, ticketID, status, externalID string) {
	l.Logger.InfoContext(ctx,
		"Refund Updated",
		slog.String("refund_id", refundID),
		slog.String("ticket_id", ticketID),
		slog.String("status", status),
		slog.String("external_refund_id", externalID),
	)
}

func (l *Logger) LogCheckIn(ctx context.Context, ticketID, scannerID, outcome string) {
	l.Logger.InfoContext(ctx,
		"Check-in",
		slog.String("ticket_id", ticketID),
		slog.String("scanner_id", scannerID),
		slog.String("outcome", outcome),
	)
}

func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, endpoint string) {
	l.Logger.WarnContext(ctx,
		"Rate Limit Exceeded",
		slog.String("ip", ip),
		slog.String("endpoint", endpoint),
	)
}

// Global logger instance
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
