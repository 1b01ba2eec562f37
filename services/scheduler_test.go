package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobImmediately(t *testing.T) {
	sched, err := NewScheduler(context.Background())
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	require.NoError(t, sched.Add(Job{
		Name:     "heartbeat",
		Interval: time.Hour,
		Run: func(context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	}))
	sched.Start()
	defer func() { assert.NoError(t, sched.Shutdown()) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}
