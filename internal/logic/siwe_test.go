package logic

import (
	"strings"
	"testing"
	"time"
)

func TestBuildSiweMessageFormat(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	message := BuildSiweMessage(SiweParams{
		Domain:         "trustlink.app",
		Address:        "0x1111111111111111111111111111111111111111",
		Statement:      "Sign in to TrustLink.",
		URI:            "https://trustlink.app",
		ChainId:        42,
		Nonce:          "abc123",
		IssuedAt:       issuedAt,
		ExpirationTime: issuedAt.Add(24 * time.Hour),
		Resources:      []string{"https://trustlink.app"},
	})

	want := "trustlink.app wants you to sign in with your LUKSO account:\n" +
		"0x1111111111111111111111111111111111111111\n" +
		"\n" +
		"Sign in to TrustLink.\n" +
		"\n" +
		"URI: https://trustlink.app\n" +
		"Version: 1\n" +
		"Chain ID: 42\n" +
		"Nonce: abc123\n" +
		"Issued At: 2025-03-01T12:00:00Z\n" +
		"Expiration Time: 2025-03-02T12:00:00Z\n" +
		"Resources:\n" +
		"- https://trustlink.app"

	if message != want {
		t.Fatalf("message format mismatch:\ngot:\n%s\n\nwant:\n%s", message, want)
	}
}

func TestBuildSiweMessageWithoutStatement(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	message := BuildSiweMessage(SiweParams{
		Domain:         "trustlink.app",
		Address:        "0x1111111111111111111111111111111111111111",
		URI:            "https://trustlink.app",
		ChainId:        42,
		Nonce:          "abc123",
		IssuedAt:       issuedAt,
		ExpirationTime: issuedAt.Add(time.Hour),
	})

	// 无statement时地址后直接接字段区
	if strings.Contains(message, "\n\n\n") {
		t.Fatalf("unexpected blank statement block:\n%s", message)
	}
	if !strings.Contains(message, "\n\nURI: https://trustlink.app\n") {
		t.Fatalf("missing URI field:\n%s", message)
	}
	if strings.Contains(message, "Resources:") {
		t.Fatalf("resources section must be omitted when empty:\n%s", message)
	}
}

func TestNewNonceUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		nonce, err := NewNonce()
		if err != nil {
			t.Fatalf("nonce generation failed: %v", err)
		}
		if len(nonce) != 32 {
			t.Fatalf("expected 32 hex chars (128 bits), got %d", len(nonce))
		}
		if _, dup := seen[nonce]; dup {
			t.Fatalf("duplicate nonce generated: %s", nonce)
		}
		seen[nonce] = struct{}{}
	}
}
