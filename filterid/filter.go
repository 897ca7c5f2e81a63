// Package filterid implements canonical Nostr filter encoding and the
// cache-identity derivation described in spec.md section 4.A. The central
// invariant it protects: a filter's cache identity must be sensitive to
// every field a relay would match on, including the open family of
// single-letter tag filters ("#e", "#p", "#platform", ...), so two filters
// that differ only by a tag never share a cache bucket.
package filterid

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Filter is a field-preserving representation of a Nostr REQ filter. The
// closed fields (IDs, Authors, Kinds, Since, Until, Limit) get typed
// accessors for convenience; every other "#x" tag filter the caller sent is
// carried verbatim in Tags, keyed by its full label including the leading
// "#". A nil slice/pointer means the caller did not supply that field; an
// empty-but-non-nil slice means the caller supplied an empty set.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Since   *int64
	Until   *int64
	Limit   *int
	// Tags holds every open "#x" tag filter, keyed by label with the "#"
	// prefix (e.g. "#platform"), value is the set of strings for that tag.
	Tags map[string][]string
}

// DecodeErrorKind classifies why Decode failed.
type DecodeErrorKind string

const (
	InvalidBase64 DecodeErrorKind = "InvalidBase64"
	InvalidUtf8   DecodeErrorKind = "InvalidUtf8"
	InvalidJson   DecodeErrorKind = "InvalidJson"
)

// DecodeError is returned by Decode; Kind is one of the three constants
// above and is what httpapi surfaces in the invalid_filter error detail.
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a base64url-without-padding token into a Filter, preserving
// every open tag-filter key without pre-projecting onto a fixed field list.
func Decode(token string) (*Filter, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &DecodeError{Kind: InvalidBase64, Err: err}
	}
	if !utf8.Valid(raw) {
		return nil, &DecodeError{Kind: InvalidUtf8}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Kind: InvalidJson, Err: err}
	}

	f := &Filter{}
	for key, value := range fields {
		switch key {
		case "ids":
			if err := json.Unmarshal(value, &f.IDs); err != nil {
				return nil, &DecodeError{Kind: InvalidJson, Err: fmt.Errorf("ids: %w", err)}
			}
			if f.IDs == nil {
				f.IDs = []string{}
			}
		case "authors":
			if err := json.Unmarshal(value, &f.Authors); err != nil {
				return nil, &DecodeError{Kind: InvalidJson, Err: fmt.Errorf("authors: %w", err)}
			}
			if f.Authors == nil {
				f.Authors = []string{}
			}
		case "kinds":
			if err := json.Unmarshal(value, &f.Kinds); err != nil {
				return nil, &DecodeError{Kind: InvalidJson, Err: fmt.Errorf("kinds: %w", err)}
			}
			if f.Kinds == nil {
				f.Kinds = []int{}
			}
		case "since":
			var v int64
			if err := json.Unmarshal(value, &v); err != nil {
				return nil, &DecodeError{Kind: InvalidJson, Err: fmt.Errorf("since: %w", err)}
			}
			f.Since = &v
		case "until":
			var v int64
			if err := json.Unmarshal(value, &v); err != nil {
				return nil, &DecodeError{Kind: InvalidJson, Err: fmt.Errorf("until: %w", err)}
			}
			f.Until = &v
		case "limit":
			var v int
			if err := json.Unmarshal(value, &v); err != nil {
				return nil, &DecodeError{Kind: InvalidJson, Err: fmt.Errorf("limit: %w", err)}
			}
			f.Limit = &v
		default:
			if !strings.HasPrefix(key, "#") || len(key) < 2 {
				// Unrecognized field without a "#" prefix (or a bare "#"):
				// the only open family is "#"-prefixed tag filters, so
				// anything else is rejected as malformed input.
				return nil, &DecodeError{Kind: InvalidJson, Err: fmt.Errorf("unrecognized field %q", key)}
			}
			var values []string
			if err := json.Unmarshal(value, &values); err != nil {
				return nil, &DecodeError{Kind: InvalidJson, Err: fmt.Errorf("%s: %w", key, err)}
			}
			if f.Tags == nil {
				f.Tags = make(map[string][]string)
			}
			f.Tags[key] = values
		}
	}
	return f, nil
}

// toMap builds the field-preserving JSON object used both for Encode and
// for canonical hashing. encoding/json marshals map[string]any keys in
// sorted order, which is what gives us a deterministic canonical form
// without hand-rolling a key sort.
func (f *Filter) toMap(sortSets bool) map[string]interface{} {
	m := make(map[string]interface{}, 6+len(f.Tags))
	if f.IDs != nil {
		m["ids"] = sortedCopy(f.IDs, sortSets)
	}
	if f.Authors != nil {
		m["authors"] = sortedCopy(f.Authors, sortSets)
	}
	if f.Kinds != nil {
		m["kinds"] = sortedIntCopy(f.Kinds, sortSets)
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit != nil {
		m["limit"] = *f.Limit
	}
	for k, v := range f.Tags {
		m[k] = sortedCopy(v, sortSets)
	}
	return m
}

func sortedCopy(in []string, doSort bool) []string {
	out := make([]string, len(in))
	copy(out, in)
	if doSort {
		sort.Strings(out)
	}
	return out
}

func sortedIntCopy(in []int, doSort bool) []int {
	out := make([]int, len(in))
	copy(out, in)
	if doSort {
		sort.Ints(out)
	}
	return out
}

// Encode serializes a Filter back into a base64url-without-padding token.
// decode(encode(f)) round-trips the field set and values; set-member order
// is not significant but the wire form produced here is deterministic.
func Encode(f *Filter) (string, error) {
	raw, err := json.Marshal(f.toMap(false))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Canonical returns the canonical JSON serialization used both on the wire
// to the relay and as the input to Identity. It includes every field the
// caller supplied, with set members sorted so that two filters with
// identical field *sets* (regardless of array order) produce identical
// bytes.
func Canonical(f *Filter) ([]byte, error) {
	return json.Marshal(f.toMap(true))
}

// Identity returns the 128-bit prefix of SHA-256 over the canonical filter
// serialization, as lowercase hex. It is the cache partition key; changing,
// adding, or removing any tag filter changes the identity.
func Identity(f *Filter) (string, error) {
	canon, err := Canonical(f)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:16]), nil
}

// ttl class durations, per spec.md section 3.
const (
	ttlProfile       = 900 * time.Second
	ttlContacts      = 600 * time.Second
	ttlNotes         = 300 * time.Second
	ttlReactions     = 120 * time.Second
	ttlDefault       = 180 * time.Second
	ttlSingleLookup  = 3600 * time.Second
	kindProfile      = 0
	kindContacts     = 3
	kindNotes        = 1
	kindReactions    = 7
)

// TTL derives the cache lifetime for a filter from its primary kind (the
// first element of Kinds, if present), per the table in spec.md section 3.
// A single-event-id lookup bypasses kind-based TTL entirely.
func TTL(f *Filter) time.Duration {
	if IsSingleEventLookup(f) {
		return ttlSingleLookup
	}
	if len(f.Kinds) == 0 {
		return ttlDefault
	}
	switch f.Kinds[0] {
	case kindProfile:
		return ttlProfile
	case kindContacts:
		return ttlContacts
	case kindNotes:
		return ttlNotes
	case kindReactions:
		return ttlReactions
	default:
		return ttlDefault
	}
}

// IsSingleEventLookup reports whether a filter is an immutable single-event
// lookup: exactly one id and no authors/kinds constraints.
func IsSingleEventLookup(f *Filter) bool {
	return len(f.IDs) == 1 && len(f.Authors) == 0 && len(f.Kinds) == 0
}
