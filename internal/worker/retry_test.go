package worker

import (
	"testing"
	"time"

	"rentbook/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 8*time.Second, p.NextDelay(4))
	assert.Equal(t, 10*time.Second, p.NextDelay(5))
	assert.Equal(t, 10*time.Second, p.NextDelay(100))

	assert.Equal(t, 4*time.Second, RetryPolicy{}.NextDelay(3))
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := RetryPolicyFromConfig(config.WorkerConfig{MaxRetries: 3, BaseDelayMS: 500, MaxDelayMS: 2000})
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(4))
}
