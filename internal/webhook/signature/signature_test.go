package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	payload := []byte(`{"id":"wh_evt_01","type":"credit.deducted"}`)

	header := Sign(payload, "whsec_test", now)
	assert.NoError(t, Verify(payload, "whsec_test", header, now))
	assert.NoError(t, Verify(payload, "whsec_test", header, now.Add(4*time.Minute)))
}

func TestSignFormat(t *testing.T) {
	now := time.Unix(1700000000, 0)
	payload := []byte("hello")

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(fmt.Sprintf("%d.%s", now.Unix(), payload)))
	want := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(mac.Sum(nil)))

	assert.Equal(t, want, Sign(payload, "secret", now))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	now := time.Unix(1700000000, 0)
	header := Sign([]byte(`{"amount":1}`), "whsec_test", now)

	err := Verify([]byte(`{"amount":1000}`), "whsec_test", header, now)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	payload := []byte("payload")
	header := Sign(payload, "whsec_a", now)

	assert.ErrorIs(t, Verify(payload, "whsec_b", header, now), ErrNoMatch)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	payload := []byte("payload")
	header := Sign(payload, "whsec_test", now)

	err := Verify(payload, "whsec_test", header, now.Add(6*time.Minute))
	assert.ErrorIs(t, err, ErrSignatureExpired)

	// Timestamps from the future are just as stale.
	err = Verify(payload, "whsec_test", header, now.Add(-6*time.Minute))
	assert.ErrorIs(t, err, ErrSignatureExpired)
}

func TestVerifyRejectsMalformedHeaders(t *testing.T) {
	now := time.Unix(1700000000, 0)
	payload := []byte("payload")

	for _, header := range []string{
		"",
		"t=123",
		"v1=deadbeef",
		"t=abc,v1=deadbeef",
		"nonsense",
	} {
		err := Verify(payload, "whsec_test", header, now)
		require.ErrorIs(t, err, ErrInvalidHeader, "header %q", header)
	}
}
