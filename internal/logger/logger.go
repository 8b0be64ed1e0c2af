package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

var (
	Logger       = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: programLevel}))
	programLevel = new(slog.LevelVar)
	sampleRate   atomic.Int32
	shutdownFunc func(context.Context) error
)

// Counters for the health endpoint. They are incremented whether or not the
// sampled log line is written.
var (
	TotalErrors    atomic.Int64
	TotalWarnings  atomic.Int64
	Total4xxErrors atomic.Int64
	Total5xxErrors atomic.Int64
	ParseFailures  atomic.Int64
)

func init() {
	sampleRate.Store(1)
}

// Options controls Setup.
type Options struct {
	Level       slog.Level
	SampleRate  int // log 1 of every SampleRate warnings and errors
	OTEL        bool
	ServiceName string
	Output      io.Writer // JSON mode only; defaults to stdout
}

// Setup installs the process logger and makes it slog's default. With OTEL
// set, records are exported over OTLP gRPC; if the exporter cannot be built
// Setup falls back to JSON and returns the error alongside.
func Setup(ctx context.Context, opts Options) error {
	programLevel.Set(opts.Level)
	if opts.SampleRate > 0 {
		sampleRate.Store(int32(opts.SampleRate))
	}

	if !opts.OTEL {
		setupJSONLogging(opts.Output)
		return nil
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "algoshield"
	}
	shutdown, err := setupOTELLogging(ctx, serviceName)
	if err != nil {
		setupJSONLogging(opts.Output)
		return fmt.Errorf("otel logging unavailable, using JSON: %w", err)
	}
	shutdownFunc = shutdown
	return nil
}

func setupJSONLogging(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: programLevel}))
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	handler := &levelHandler{
		level: programLevel,
		handler: otelslog.NewHandler(serviceName,
			otelslog.WithLoggerProvider(provider),
		),
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
	return provider.Shutdown, nil
}

// levelHandler applies the program level to handlers that have none.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL exporter. It is a no-op in JSON mode.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel changes the minimum level at runtime
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name such as "debug" or "WARN" to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", s)
	}
}

func shouldSample() bool {
	rate := sampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.IntN(int(rate)) == 0
}

// Trace logs at trace level
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn is sampled; TotalWarnings is always incremented.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error is sampled; TotalErrors is always incremented.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs, flushes the exporter and exits with status 1.
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// HTTPStatus records a 4xx or 5xx response in the counters.
func HTTPStatus(status int) {
	switch {
	case status >= 500:
		Total5xxErrors.Add(1)
		TotalErrors.Add(1)
	case status >= 400:
		Total4xxErrors.Add(1)
		TotalWarnings.Add(1)
	}
}

// ParseFailure records a rejected rule or context document.
func ParseFailure() {
	ParseFailures.Add(1)
}

// Counters is a snapshot of the logging counters.
type Counters struct {
	Errors        int64 `json:"errors"`
	Warnings      int64 `json:"warnings"`
	HTTP4xx       int64 `json:"http_4xx"`
	HTTP5xx       int64 `json:"http_5xx"`
	ParseFailures int64 `json:"parse_failures"`
}

// Snapshot returns the current counter values
func Snapshot() Counters {
	return Counters{
		Errors:        TotalErrors.Load(),
		Warnings:      TotalWarnings.Load(),
		HTTP4xx:       Total4xxErrors.Load(),
		HTTP5xx:       Total5xxErrors.Load(),
		ParseFailures: ParseFailures.Load(),
	}
}
