package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the request header carrying the signature.
const Header = "X-Creditrail-Signature"

// DefaultTolerance bounds how old a signed timestamp may be before
// verification rejects it.
const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidHeader    = errors.New("invalid_signature_header")
	ErrSignatureExpired = errors.New("signature_expired")
	ErrNoMatch          = errors.New("signature_mismatch")
)

// Sign produces the header value "t=<unix>,v1=<hex>" where the digest is
// HMAC-SHA256 over "<unix>.<payload>". Binding the timestamp into the
// signed material stops replay with a re-stamped header.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, digest(payload, secret, ts))
}

// Verify checks a signature header against the payload with DefaultTolerance.
func Verify(payload []byte, secret, header string, now time.Time) error {
	return VerifyWithTolerance(payload, secret, header, now, DefaultTolerance)
}

// VerifyWithTolerance checks a signature header against the payload. The
// digest comparison is constant-time.
func VerifyWithTolerance(payload []byte, secret, header string, now time.Time, tolerance time.Duration) error {
	ts, provided, err := parseHeader(header)
	if err != nil {
		return err
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if tolerance > 0 && age > int64(tolerance.Seconds()) {
		return ErrSignatureExpired
	}

	expected := digest(payload, secret, ts)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrNoMatch
	}
	return nil
}

func digest(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseHeader(header string) (int64, string, error) {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, "", ErrInvalidHeader
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", ErrInvalidHeader
			}
			ts = parsed
		case "v1":
			sig = value
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", ErrInvalidHeader
	}
	return ts, sig, nil
}
