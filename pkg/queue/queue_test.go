package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyFor(t *testing.T) {
	assert.Equal(t, QueueEmails, KeyFor(JobTypeEmail))
	assert.Equal(t, QueueWebhooks, KeyFor(JobTypeWebhook))
	assert.Equal(t, QueueEmails, KeyFor("unknown"))
}

func TestJobExhausted(t *testing.T) {
	j := &Job{}
	for i := 0; i < MaxRetries-1; i++ {
		j.Attempt++
		assert.False(t, j.Exhausted())
	}
	j.Attempt++
	assert.True(t, j.Exhausted())
}
