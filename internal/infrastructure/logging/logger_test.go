package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"focustrack/internal/testutils"
)

type mockClassifiedError struct {
	message   string
	code      string
	retryable bool
	context   map[string]string
	timestamp time.Time
}

func (m *mockClassifiedError) Error() string                 { return m.message }
func (m *mockClassifiedError) GetCode() string               { return m.code }
func (m *mockClassifiedError) IsRetryable() bool             { return m.retryable }
func (m *mockClassifiedError) GetContext() map[string]string { return m.context }
func (m *mockClassifiedError) GetTimestamp() time.Time       { return m.timestamp }

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to parse JSON log entry: %v, output: %q", err, line)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()
	if _, ok := logger.(*DefaultLogger); !ok {
		t.Errorf("NewDefaultLogger() returned %T, expected *DefaultLogger", logger)
	}
}

func TestDefaultLogger_LogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelDebug)

	tests := []struct {
		name           string
		logFunc        func(string, ...interface{})
		fields         []interface{}
		levelToken     string
		expectedFields map[string]interface{}
	}{
		{"Debug", logger.Debug, []interface{}{"key", "value"}, "DEBUG", map[string]interface{}{"key": "value"}},
		{"Info", logger.Info, []interface{}{"count", 42}, "INFO", map[string]interface{}{"count": float64(42)}},
		{"Warn", logger.Warn, nil, "WARN", map[string]interface{}{}},
		{"Error", logger.Error, []interface{}{"error", errors.New("boom")}, "ERROR", map[string]interface{}{"error": "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc(tt.name+" message", tt.fields...)

			entries := decodeEntries(t, &buf)
			if len(entries) != 1 {
				t.Fatalf("Expected 1 entry, got %d", len(entries))
			}
			entry := entries[0]
			if entry["timestamp"] == nil {
				t.Error("Expected log entry to have timestamp field")
			}
			if entry["level"] != tt.levelToken {
				t.Errorf("Expected level %q, got %q", tt.levelToken, entry["level"])
			}
			if entry["message"] != tt.name+" message" {
				t.Errorf("Unexpected message %q", entry["message"])
			}
			fields, ok := entry["fields"].(map[string]interface{})
			if !ok {
				t.Fatalf("Expected fields to be a map, got %T", entry["fields"])
			}
			for key, want := range tt.expectedFields {
				if got := fields[key]; got != want {
					t.Errorf("Expected field %q to be %v, got %v", key, want, got)
				}
			}
		})
	}
}

func TestDefaultLogger_MinimumLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown")

	if got := len(decodeEntries(t, &buf)); got != 2 {
		t.Errorf("Expected 2 entries at warn and above, got %d", got)
	}
}

func TestDefaultLogger_With(t *testing.T) {
	var buf bytes.Buffer
	child := NewLogger(&buf, LevelInfo).With("component", "timer")
	child.Info("Timer started", "taskId", 7)

	entries := decodeEntries(t, &buf)
	fields := entries[0]["fields"].(map[string]interface{})
	if fields["component"] != "timer" || fields["taskId"] != float64(7) {
		t.Errorf("Expected inherited and call fields, got %v", fields)
	}
}

func TestDefaultLogger_MalformedFields(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, LevelInfo).Info("odd", "key", "value", "dangling")

	fields := decodeEntries(t, &buf)[0]["fields"].(map[string]interface{})
	if fields["key"] != "value" {
		t.Errorf("Expected key=value, got %v", fields["key"])
	}
	if fields["field_1"] != "dangling" {
		t.Errorf("Expected dangling value under field_1, got %v", fields)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		" warn ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogError_WithClassifiedError(t *testing.T) {
	rec := &testutils.RecordingLogger{}
	storeErr := &mockClassifiedError{
		message:   "commit failed",
		code:      "BUSY",
		retryable: true,
		context:   map[string]string{"taskId": "4"},
		timestamp: time.Now(),
	}

	LogError(rec, storeErr, "CommitSegment", map[string]interface{}{"attempt": 2})

	calls := rec.Find("ERROR", "Store error: commit failed")
	if len(calls) != 1 {
		t.Fatalf("Expected 1 error call, got %d", len(calls))
	}
	fields := testutils.FieldsToMap(t, calls[0].Fields)
	expected := map[string]interface{}{
		"operation":  "CommitSegment",
		"error_code": "BUSY",
		"retryable":  true,
		"taskId":     "4",
		"attempt":    2,
	}
	for key, want := range expected {
		if got, ok := fields[key]; !ok || got != want {
			t.Errorf("Field %q: expected %v, got %v", key, want, got)
		}
	}
}

func TestLogError_WithRegularError(t *testing.T) {
	rec := &testutils.RecordingLogger{}
	LogError(rec, errors.New("plain"), "Flush", nil)

	calls := rec.Find("ERROR", "Unexpected error: plain")
	if len(calls) != 1 {
		t.Fatalf("Expected 1 error call, got %d", len(calls))
	}
	if fields := testutils.FieldsToMap(t, calls[0].Fields); fields["error_type"] != "*errors.errorString" {
		t.Errorf("Expected error_type field, got %v", fields)
	}
}

func TestLogOperation(t *testing.T) {
	rec := &testutils.RecordingLogger{}
	LogOperation(rec, "AddDayTotals", 150*time.Millisecond, map[string]interface{}{"days": 2})

	calls := rec.Find("DEBUG", "AddDayTotals")
	if len(calls) != 1 {
		t.Fatalf("Expected 1 debug call, got %d", len(calls))
	}
	fields := testutils.FieldsToMap(t, calls[0].Fields)
	if fields["duration_ms"] != int64(150) || fields["days"] != 2 {
		t.Errorf("Unexpected fields %v", fields)
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &testutils.RecordingLogger{}

	router := gin.New()
	router.Use(GinRecovery(rec), GinMiddleware(rec))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	for _, path := range []string{"/ok", "/missing", "/panic"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := len(rec.Find("DEBUG", "HTTP request")); got != 1 {
		t.Errorf("Expected 1 debug request entry, got %d", got)
	}
	if got := len(rec.Find("WARN", "HTTP request rejected")); got != 1 {
		t.Errorf("Expected 1 rejected entry, got %d", got)
	}
	if got := len(rec.Find("ERROR", "HTTP handler panic")); got != 1 {
		t.Errorf("Expected 1 panic entry, got %d", got)
	}
}
