package testutils

import (
	"fmt"
	"sync"
	"testing"
)

type captureT struct {
	messages []string
}

func (c *captureT) Errorf(format string, args ...any) {
	c.messages = append(c.messages, fmt.Sprintf(format, args...))
}

func TestFieldsToMap(t *testing.T) {
	tests := []struct {
		name     string
		fields   []any
		expected map[string]any
	}{
		{"empty fields", []any{}, map[string]any{}},
		{"single pair", []any{"taskId", int64(3)}, map[string]any{"taskId": int64(3)}},
		{"mixed types", []any{"op", "flush", "count", 2, "ok", true}, map[string]any{"op": "flush", "count": 2, "ok": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FieldsToMap(t, tt.fields)
			if len(result) != len(tt.expected) {
				t.Errorf("Expected map length %d, got %d", len(tt.expected), len(result))
			}
			for key, want := range tt.expected {
				if got, ok := result[key]; !ok || got != want {
					t.Errorf("Key %q: expected %v, got %v", key, want, got)
				}
			}
		})
	}
}

func TestFieldsToMap_MalformedInput(t *testing.T) {
	t.Run("odd number of fields", func(t *testing.T) {
		mock := &captureT{}
		result := FieldsToMap(mock, []any{"key1", "value1", "key2"})
		if len(result) != 1 || result["key1"] != "value1" {
			t.Errorf("Expected only key1=value1, got %v", result)
		}
		if len(mock.messages) != 1 {
			t.Errorf("Expected 1 error message, got %d", len(mock.messages))
		}
	})

	t.Run("non-string key", func(t *testing.T) {
		mock := &captureT{}
		result := FieldsToMap(mock, []any{123, "value", "valid_key", "valid_value"})
		if len(result) != 1 || result["valid_key"] != "valid_value" {
			t.Errorf("Expected only valid_key, got %v", result)
		}
		if len(mock.messages) != 1 {
			t.Errorf("Expected 1 error message, got %d", len(mock.messages))
		}
	})
}

func TestRecordingLogger(t *testing.T) {
	logger := &RecordingLogger{}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Timer started", "taskId", i)
		}()
	}
	wg.Wait()
	logger.Warn("Suspension detected", "gap", "5s")
	logger.Error("Flush failed")

	if got := len(logger.Entries()); got != 12 {
		t.Fatalf("Expected 12 entries, got %d", got)
	}
	if got := len(logger.Find("INFO", "Timer")); got != 10 {
		t.Errorf("Expected 10 info entries, got %d", got)
	}
	warns := logger.Find("WARN", "Suspension")
	if len(warns) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(warns))
	}
	if fields := FieldsToMap(t, warns[0].Fields); fields["gap"] != "5s" {
		t.Errorf("Expected gap=5s, got %v", fields["gap"])
	}
	if got := len(logger.Find("", "")); got != 12 {
		t.Errorf("Empty filters should match everything, got %d", got)
	}
}
