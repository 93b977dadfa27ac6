// Package webhook signs and verifies webhook payloads with HMAC-SHA256.
//
// The header format is "t=<unix seconds>,v1=<hex digest>" where the digest is
// HMAC-SHA256(secret, "<t>.<raw payload>"). Several v1 entries may be present
// during secret rotation; any one matching is enough.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum accepted age of a signature.
const DefaultTolerance = 5 * time.Minute

// Sign returns the signature header value for payload at the given time.
func Sign(secret string, payload []byte, at time.Time) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}

	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, digest(secret, ts, payload)), nil
}

// Verify checks header against payload. A zero or negative tolerance
// disables the timestamp window check.
func Verify(secret string, payload []byte, header string, tolerance time.Duration) error {
	return VerifyAt(secret, payload, header, tolerance, time.Now())
}

// VerifyAt is Verify with an explicit clock.
func VerifyAt(secret string, payload []byte, header string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	ts, sigs, err := parseHeader(header)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: age %v", ErrTimestampExpired, age)
		}
	}

	expected := []byte(digest(secret, ts, payload))
	for _, sig := range sigs {
		if hmac.Equal(expected, []byte(sig)) {
			return nil
		}
	}

	return ErrSignatureMismatch
}

func parseHeader(header string) (int64, []string, error) {
	if strings.TrimSpace(header) == "" {
		return 0, nil, ErrMalformedHeader
	}

	var (
		ts    int64
		hasTS bool
		sigs  []string
	)
	for part := range strings.SplitSeq(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrMalformedHeader)
			}
			ts, hasTS = parsed, true
		case "v1":
			sigs = append(sigs, value)
		}
	}

	if !hasTS || len(sigs) == 0 {
		return 0, nil, ErrMalformedHeader
	}
	return ts, sigs, nil
}

func digest(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
