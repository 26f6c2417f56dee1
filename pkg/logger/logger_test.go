package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeFieldsMasksSensitiveKeys(t *testing.T) {
	t.Parallel()

	fields := SanitizeFields([]zap.Field{
		zap.String("authorization", "Bearer abc"),
		zap.Any("request_body", map[string]interface{}{"name": "Spring", "access_token": "x"}),
	})

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if enc.Fields["authorization"] != "***" {
		t.Fatalf("expected authorization masked, got %v", enc.Fields["authorization"])
	}
	body, ok := enc.Fields["request_body"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected request_body map, got %T", enc.Fields["request_body"])
	}
	if body["access_token"] != "***" || body["name"] != "Spring" {
		t.Fatalf("unexpected sanitized body: %v", body)
	}
}

func TestSanitizeMap(t *testing.T) {
	t.Parallel()

	out := SanitizeMap(map[string]interface{}{
		"reason": "stock issue",
		"nested": map[string]interface{}{"client_secret": "s"},
	})
	nested := out["nested"].(map[string]interface{})
	if out["reason"] != "stock issue" || nested["client_secret"] != "***" {
		t.Fatalf("unexpected output: %v", out)
	}
	if SanitizeMap(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}

func TestTailQueryFiltersAndWraps(t *testing.T) {
	t.Parallel()

	core, _ := observer.New(zapcore.DebugLevel)
	tail := NewTail(3)
	logger := Attach(zap.New(core), tail)

	logger.Info("sweep done", zap.Int("activated", 1))
	logger.Warn("purchase failed", zap.String("token", "secret"))
	logger.Info("sweep done", zap.Int("activated", 0))
	logger.Error("redis unavailable")

	all, total, _, _ := tail.Query(TailQuery{})
	if total != 3 || len(all) != 3 {
		t.Fatalf("expected ring to keep 3 entries, got %d", total)
	}
	if all[0].Message != "redis unavailable" {
		t.Fatalf("expected newest first, got %q", all[0].Message)
	}

	warn, total, _, _ := tail.Query(TailQuery{MinLevel: zapcore.WarnLevel})
	if total != 2 {
		t.Fatalf("expected 2 warn+ entries, got %d", total)
	}
	if warn[1].Fields["token"] != "***" {
		t.Fatalf("expected masked token, got %v", warn[1].Fields)
	}

	_, total, _, _ = tail.Query(TailQuery{Keyword: "SWEEP"})
	if total != 1 {
		t.Fatalf("expected keyword match on 1 entry, got %d", total)
	}
}
