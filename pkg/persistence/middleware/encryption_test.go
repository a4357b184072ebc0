package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/aretw0/chequeflow/pkg/adapters/memory"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/persistence/middleware"
	"github.com/aretw0/chequeflow/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func mustEncryption(t *testing.T, cfg middleware.EncryptionConfig) middleware.Middleware {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return mw
}

func forwardEntry(id string) ports.Entry {
	return ports.Entry{
		ID:        id,
		SessionID: "s1",
		Type:      ports.EntryForward,
		Operation: domain.OpCheckStatus,
		RequestID: "R1",
		Payload:   map[string]any{domain.FieldAccountNumber: "99881", domain.FieldRequestID: "R1"},
	}
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewJournal()
	secure := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	if err := secure.Append(ctx, forwardEntry("e1")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := secure.Append(ctx, ports.Entry{ID: "e2", SessionID: "s1", Type: ports.EntryAbandoned}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Underlying journal keeps only the envelope.
	stored, err := underlying.List(ctx, "s1")
	if err != nil {
		t.Fatalf("Underlying list failed: %v", err)
	}
	if _, ok := stored[0].Payload[domain.FieldAccountNumber]; ok {
		t.Fatal("Expected account number to be hidden")
	}
	if _, ok := stored[0].Payload["__encrypted__"]; !ok {
		t.Fatal("Expected __encrypted__ field in payload")
	}
	if stored[0].RequestID != "R1" || stored[0].Type != ports.EntryForward {
		t.Error("Envelope should keep the readable fields")
	}
	if stored[1].Payload != nil {
		t.Error("Entries without sensitive data should be stored as is")
	}

	entries, err := secure.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List via middleware failed: %v", err)
	}
	if entries[0].Payload[domain.FieldAccountNumber] != "99881" {
		t.Errorf("Expected '99881', got %v", entries[0].Payload[domain.FieldAccountNumber])
	}
}

func TestEncryptionMiddleware_SealsDetail(t *testing.T) {
	underlying := memory.NewJournal()
	secure := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	entry := ports.Entry{ID: "e1", SessionID: "s1", Type: ports.EntryRollbackFailed, Detail: "account 99881 locked"}
	if err := secure.Append(ctx, entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	stored, _ := underlying.List(ctx, "s1")
	if stored[0].Detail != "" {
		t.Errorf("Detail should be sealed, got %q", stored[0].Detail)
	}
	entries, err := secure.List(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Detail != "account 99881 locked" {
		t.Errorf("Detail not restored, got %q", entries[0].Detail)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewJournal()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	if err := secureOld.Append(ctx, forwardEntry("old")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	secureNew := mustEncryption(t, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)
	if err := secureNew.Append(ctx, forwardEntry("new")); err != nil {
		t.Fatalf("Append with new key failed: %v", err)
	}

	entries, err := secureNew.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List with rotated key failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Payload[domain.FieldAccountNumber] != "99881" {
		t.Errorf("Decryption with fallback key failed: %+v", entries)
	}

	// The old key alone cannot open entries sealed with the new one.
	if _, err := secureOld.List(ctx, "s1"); err == nil {
		t.Error("Expected failure when listing new-key entries with old-key middleware")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")}); err == nil {
		t.Error("Expected error for invalid key size")
	}
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	if err == nil {
		t.Error("Expected error for invalid fallback key size")
	}
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	got, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(key) {
		t.Error("Key not decoded")
	}
	if _, err := middleware.ParseKey("not base64!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
	if _, err := middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("Expected error for short key")
	}
}
