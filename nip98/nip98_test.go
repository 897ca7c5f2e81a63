package nip98

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

func signedAuthEvent(t *testing.T, kind int, method, url string, createdAt time.Time) (nostr.Event, string) {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	evt := nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Timestamp(createdAt.Unix()),
		Kind:      kind,
		Tags: nostr.Tags{
			{"method", method},
			{"u", url},
		},
		Content: "",
	}
	if err := evt.Sign(sk); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return evt, sk
}

func headerFor(evt nostr.Event) string {
	raw, _ := json.Marshal(evt)
	return "Nostr " + base64.StdEncoding.EncodeToString(raw)
}

func TestValidateSuccess(t *testing.T) {
	evt, _ := signedAuthEvent(t, authKind, "GET", "https://gateway.example/query", time.Now())
	pubkey, err := Validate(headerFor(evt), "GET", "https://gateway.example/query")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if pubkey != evt.PubKey {
		t.Fatalf("expected pubkey %s, got %s", evt.PubKey, pubkey)
	}
}

func TestValidateMethodCaseInsensitive(t *testing.T) {
	evt, _ := signedAuthEvent(t, authKind, "get", "https://gateway.example/query", time.Now())
	if _, err := Validate(headerFor(evt), "GET", "https://gateway.example/query"); err != nil {
		t.Fatalf("expected case-insensitive method match to succeed: %v", err)
	}
}

// TestValidateRejectsWrongKind is scenario S7.
func TestValidateRejectsWrongKind(t *testing.T) {
	evt, _ := signedAuthEvent(t, 1, "GET", "https://gateway.example/query", time.Now())
	_, err := Validate(headerFor(evt), "GET", "https://gateway.example/query")
	verr, ok := err.(*ValidationError)
	if !ok || verr.Kind != InvalidKind {
		t.Fatalf("expected InvalidKind, got %v", err)
	}
}

func TestValidateMissingHeader(t *testing.T) {
	_, err := Validate("", "GET", "https://gateway.example/query")
	verr, ok := err.(*ValidationError)
	if !ok || verr.Kind != MissingHeader {
		t.Fatalf("expected MissingHeader, got %v", err)
	}
}

func TestValidateExpired(t *testing.T) {
	evt, _ := signedAuthEvent(t, authKind, "GET", "https://gateway.example/query", time.Now().Add(-10*time.Minute))
	_, err := Validate(headerFor(evt), "GET", "https://gateway.example/query")
	verr, ok := err.(*ValidationError)
	if !ok || verr.Kind != Expired {
		t.Fatalf("expected Expired, got %v", err)
	}
}

func TestValidateWrongMethod(t *testing.T) {
	evt, _ := signedAuthEvent(t, authKind, "POST", "https://gateway.example/publish", time.Now())
	_, err := Validate(headerFor(evt), "GET", "https://gateway.example/publish")
	verr, ok := err.(*ValidationError)
	if !ok || verr.Kind != InvalidMethod {
		t.Fatalf("expected InvalidMethod, got %v", err)
	}
}

func TestValidateWrongUrl(t *testing.T) {
	evt, _ := signedAuthEvent(t, authKind, "GET", "https://gateway.example/query", time.Now())
	_, err := Validate(headerFor(evt), "GET", "https://gateway.example/other")
	verr, ok := err.(*ValidationError)
	if !ok || verr.Kind != InvalidUrl {
		t.Fatalf("expected InvalidUrl, got %v", err)
	}
}

func TestValidateTamperedContentInvalidatesSignature(t *testing.T) {
	evt, _ := signedAuthEvent(t, authKind, "GET", "https://gateway.example/query", time.Now())
	evt.Content = "tampered"
	_, err := Validate(headerFor(evt), "GET", "https://gateway.example/query")
	verr, ok := err.(*ValidationError)
	if !ok || verr.Kind != InvalidSignature {
		t.Fatalf("expected InvalidSignature after tampering, got %v", err)
	}
}

func TestValidateInvalidBase64(t *testing.T) {
	_, err := Validate("Nostr not-valid-base64!!!", "GET", "https://gateway.example/query")
	verr, ok := err.(*ValidationError)
	if !ok || verr.Kind != InvalidBase64 {
		t.Fatalf("expected InvalidBase64, got %v", err)
	}
}
