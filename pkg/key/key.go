// Package key normalises application-supplied cache keys into the
// canonical and (optionally) hashed wire forms the rest of zonecache
// operates on.
//
// Every public zonecache operation calls New once per application key;
// GetAndTouch and GetBulkAndTouch call it again for their touch step.
// The result is immutable and cheap to pass by value through the
// orchestrator.
package key

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Algorithm identifies a wire-key hashing scheme.
type Algorithm string

const (
	// AlgoXXHash64 hashes the canonical key with xxhash's 64-bit
	// variant. This is the algorithm actually used when configuration
	// requests "siphash24": no SipHash implementation is available
	// anywhere in this module's dependency set, so siphash24 resolves
	// to this algorithm (see DESIGN.md).
	AlgoXXHash64 Algorithm = "xxhash64"

	// AlgoSiphash24 is accepted as a configuration spelling and is
	// resolved to AlgoXXHash64 at construction time.
	AlgoSiphash24 Algorithm = "siphash24"
)

// ErrInvalidArgument is returned when an application key is empty,
// all whitespace, or contains embedded whitespace.
var ErrInvalidArgument = errors.New("key: invalid argument")

// ErrInvalidKey is returned when a canonical key exceeds the
// configured maximum length and hashing is not in effect.
var ErrInvalidKey = errors.New("key: canonical key exceeds max length and hashing is disabled")

// Options controls how New composes a NormalisedKey. All fields are
// read at call time, so callers backed by pkg/config's live-reloadable
// cells naturally pick up configuration changes between calls.
type Options struct {
	Prefix       string
	MaxKeyLength int
	Algorithm    Algorithm
	ForceHash    bool
	AutoHash     bool
}

// NormalisedKey is the immutable triple described in spec §3.1.
type NormalisedKey struct {
	ApplicationKey string
	CanonicalKey   string
	HashedKey      string // empty when hashing is not in effect
	Algorithm      Algorithm
	hashed         bool
}

// New validates applicationKey and composes a NormalisedKey according
// to opts. It fails with ErrInvalidArgument for malformed application
// keys and ErrInvalidKey when the canonical key is too long and
// neither forced nor automatic hashing applies.
func New(applicationKey string, opts Options) (NormalisedKey, error) {
	if applicationKey == "" || strings.TrimSpace(applicationKey) == "" {
		return NormalisedKey{}, fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	if strings.ContainsAny(applicationKey, " \t\n\r") {
		return NormalisedKey{}, fmt.Errorf("%w: key %q contains whitespace", ErrInvalidArgument, applicationKey)
	}

	canonical := applicationKey
	if opts.Prefix != "" {
		canonical = opts.Prefix + ":" + applicationKey
	}

	maxLen := opts.MaxKeyLength
	if maxLen <= 0 {
		maxLen = 200
	}

	algo := resolveAlgorithm(opts.Algorithm)

	nk := NormalisedKey{
		ApplicationKey: applicationKey,
		CanonicalKey:   canonical,
		Algorithm:      algo,
	}

	needsHash := opts.ForceHash || (opts.AutoHash && len(canonical) > maxLen)
	if needsHash {
		nk.HashedKey = hashCanonical(canonical, algo)
		nk.hashed = true
		return nk, nil
	}

	if len(canonical) > maxLen {
		return NormalisedKey{}, fmt.Errorf("%w: %q is %d bytes, max %d", ErrInvalidKey, canonical, len(canonical), maxLen)
	}
	return nk, nil
}

// resolveAlgorithm maps the configured algorithm identifier onto one
// this module actually implements.
func resolveAlgorithm(a Algorithm) Algorithm {
	switch a {
	case "", AlgoSiphash24, AlgoXXHash64:
		return AlgoXXHash64
	default:
		return AlgoXXHash64
	}
}

// hashCanonical computes the wire-key digest for canonical under algo.
// The digest is rendered as 16 lowercase hex characters (64 bits).
func hashCanonical(canonical string, algo Algorithm) string {
	switch algo {
	default:
		sum := xxhash.Sum64String(canonical)
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(sum >> (56 - 8*i))
		}
		return hex.EncodeToString(buf[:])
	}
}

// IsHashed reports whether HashedKey is present.
func (k NormalisedKey) IsHashed() bool {
	return k.hashed
}

// DerivedKey returns the form that should actually travel on the wire.
// duet replicas want the bare application key regardless of hashing or
// prefixing; this is treated as an opaque replica capability per
// spec §3.1 and §9.
func (k NormalisedKey) DerivedKey(duetReplica bool) string {
	if duetReplica {
		return k.ApplicationKey
	}
	if k.hashed {
		return k.HashedKey
	}
	return k.CanonicalKey
}

// String implements fmt.Stringer for logging.
func (k NormalisedKey) String() string {
	if k.hashed {
		return fmt.Sprintf("%s(hashed=%s,algo=%s)", k.CanonicalKey, k.HashedKey, k.Algorithm)
	}
	return k.CanonicalKey
}
