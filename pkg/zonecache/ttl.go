package zonecache

import "time"

// maxRelativeTTLSeconds is 30 days in seconds; TTLs above this are
// interpreted as absolute epoch-seconds values (spec §4.8).
const maxRelativeTTLSeconds = 30 * 24 * 60 * 60

// validateTTL enforces spec §4.8's memcached-style rules, returning
// ErrInvalidTTL on violation.
func validateTTL(ttlSeconds int64, now time.Time) error {
	if ttlSeconds < 0 {
		return ErrInvalidTTL("ttl must be >= 0")
	}

	nowMs := now.UnixMilli()
	if ttlSeconds > nowMs {
		return ErrInvalidTTL("ttl looks like milliseconds, not seconds")
	}

	if ttlSeconds > maxRelativeTTLSeconds {
		nowSeconds := now.Unix()
		if ttlSeconds <= nowSeconds {
			return ErrInvalidTTL("ttl exceeds 30 days but is not a future absolute epoch-seconds value")
		}
	}

	return nil
}
