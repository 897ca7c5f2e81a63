// Package nip98 validates HTTP-auth Nostr events per spec.md section 4.C:
// a signed kind-27235 event bound to the request method and URL with a
// 60-second validity window.
package nip98

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// ErrorKind classifies why Validate rejected a request, matching the set
// in spec.md section 4.C.
type ErrorKind string

const (
	MissingHeader    ErrorKind = "MissingHeader"
	InvalidFormat    ErrorKind = "InvalidFormat"
	InvalidBase64    ErrorKind = "InvalidBase64"
	InvalidJson      ErrorKind = "InvalidJson"
	InvalidKind      ErrorKind = "InvalidKind"
	InvalidMethod    ErrorKind = "InvalidMethod"
	InvalidUrl       ErrorKind = "InvalidUrl"
	Expired          ErrorKind = "Expired"
	InvalidSignature ErrorKind = "InvalidSignature"
)

// ValidationError carries the rejection kind and a human-readable detail,
// surfaced verbatim by httpapi in the auth_failed error envelope.
type ValidationError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ValidationError) Error() string { return string(e.Kind) + ": " + e.Detail }

func fail(kind ErrorKind, format string, args ...interface{}) (string, error) {
	return "", &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

const (
	authKind  = 27235
	maxSkew   = 60 * time.Second
	headerPfx = "Nostr "
)

// Validate implements the seven-step procedure of spec.md section 4.C in
// order; the first failure aborts and is returned. On success it returns
// the authenticated pubkey.
func Validate(authHeader, method, url string) (string, error) {
	if authHeader == "" {
		return fail(MissingHeader, "missing Authorization header")
	}
	if !strings.HasPrefix(authHeader, headerPfx) {
		return fail(InvalidFormat, "Authorization header must start with %q", headerPfx)
	}
	b64 := strings.TrimPrefix(authHeader, headerPfx)

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fail(InvalidBase64, "%v", err)
	}

	var evt nostr.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return fail(InvalidJson, "%v", err)
	}

	if evt.Kind != authKind {
		return fail(InvalidKind, "invalid event kind, expected %d", authKind)
	}

	now := time.Now()
	skew := now.Unix() - int64(evt.CreatedAt)
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > maxSkew {
		return fail(Expired, "event timestamp outside %v skew window", maxSkew)
	}

	methodTag, ok := firstTagValue(evt.Tags, "method")
	if !ok || !strings.EqualFold(methodTag, method) {
		return fail(InvalidMethod, "method tag %q does not match request method %q", methodTag, method)
	}

	urlTag, ok := firstTagValue(evt.Tags, "u")
	if !ok || urlTag != url {
		return fail(InvalidUrl, "u tag %q does not match request url %q", urlTag, url)
	}

	wantID, err := canonicalID(&evt)
	if err != nil {
		return fail(InvalidJson, "%v", err)
	}
	if wantID != evt.ID {
		return fail(InvalidSignature, "event id does not match canonical serialization")
	}

	ok, err = evt.CheckSignature()
	if err != nil || !ok {
		return fail(InvalidSignature, "schnorr signature verification failed")
	}

	return evt.PubKey, nil
}

func firstTagValue(tags nostr.Tags, name string) (string, bool) {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

// canonicalID recomputes the event id as SHA-256 of the canonical array
// [0, pubkey, created_at, kind, tags, content], per NIP-01.
func canonicalID(evt *nostr.Event) (string, error) {
	tags := evt.Tags
	if tags == nil {
		tags = nostr.Tags{}
	}
	arr := []interface{}{0, evt.PubKey, int64(evt.CreatedAt), evt.Kind, tags, evt.Content}
	raw, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
