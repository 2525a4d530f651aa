package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryDelay(0))
	assert.Equal(t, time.Minute, RetryDelay(1))
	assert.Equal(t, 5*time.Minute, RetryDelay(2))
	assert.Equal(t, 24*time.Hour, RetryDelay(7))
	assert.Equal(t, 24*time.Hour, RetryDelay(50))
	assert.Equal(t, time.Duration(0), RetryDelay(-1))
}
