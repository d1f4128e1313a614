// Package debug provides category-based debug logging for groqchat.
//
// Two independent controls:
//   - Categories select what to debug, via GROQ_DEBUG or config.
//   - Levels select how much detail, via GROQ_LOG_LEVEL or config.
//
// Usage:
//
//	debug.Log("client", "dispatch", "mode", "stream", "model", model)
//	debug.Body("client", "request body", body)
//
// Categories: client, streaming, storage, config, mock, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is below slog.LevelDebug. At TRACE, full request and
// response bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// bodyPreview bounds body logging below TRACE.
const bodyPreview = 200

// categories is read-only after Init.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("GROQ_DEBUG"))
}

// Init configures categories and the default slog handler. Environment
// values take precedence over the config values passed in.
func Init(configCategories, configLevel string) {
	InitWriter(os.Stderr, configCategories, configLevel)
}

// InitWriter is Init with an explicit log destination.
func InitWriter(w io.Writer, configCategories, configLevel string) {
	cats := os.Getenv("GROQ_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("GROQ_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}
	// An enabled category implies at least DEBUG, otherwise its output
	// would be filtered out by the default INFO level.
	lvl := ParseLevel(level)
	if len(categories) > 0 && lvl > slog.LevelDebug {
		lvl = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})))
}

// Enabled reports whether debug output is active for category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for category. No-op when the category is off.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for category.
func Trace(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Body logs a payload: in full at TRACE, truncated at DEBUG.
func Body(category, msg string, body []byte) {
	if !Enabled(category) {
		return
	}
	if TraceIsEnabled(category) {
		Trace(category, msg, "body", string(body))
		return
	}
	Log(category, msg, "bytes", len(body), "preview", Truncate(string(body), bodyPreview))
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories.
func Categories() []string {
	var result []string
	for k := range categories {
		result = append(result, k)
	}
	return result
}

// Truncate returns s cut to maxLen bytes, with "..." appended if cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
