package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReminders struct {
	calls atomic.Int32
	after time.Duration
	err   error
	block chan struct{}
}

func (f *fakeReminders) SendApprovalReminders(_ context.Context, after time.Duration) (int, error) {
	f.calls.Add(1)
	f.after = after
	if f.block != nil {
		<-f.block
	}
	return 2, f.err
}

func TestScheduler_RunReminders(t *testing.T) {
	fake := &fakeReminders{}
	s := New(fake, 72*time.Hour, zap.NewNop())

	s.RunReminders()
	assert.Equal(t, int32(1), fake.calls.Load())
	assert.Equal(t, 72*time.Hour, fake.after)

	fake.err = errors.New("db down")
	s.RunReminders()
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	fake := &fakeReminders{block: make(chan struct{})}
	s := New(fake, time.Hour, zap.NewNop())

	done := make(chan struct{})
	go func() {
		s.RunReminders()
		close(done)
	}()
	require.Eventually(t, func() bool { return fake.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.RunReminders()
	assert.Equal(t, int32(1), fake.calls.Load())

	close(fake.block)
	<-done
}

func TestScheduler_AddReminderJob(t *testing.T) {
	s := New(&fakeReminders{}, time.Hour, zap.NewNop())

	_, err := s.AddReminderJob("0 8 * * *")
	require.NoError(t, err)

	_, err = s.AddReminderJob("not a spec")
	assert.Error(t, err)

	s.Start()
	s.Stop()
}
