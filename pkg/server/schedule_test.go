package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raterudder/luminus/pkg/storage"
	"github.com/raterudder/luminus/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(new(mockClient), storage.NewMemory())
		c, err := s.startScheduler(context.Background())
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("invalid", func(t *testing.T) {
		s := newTestServer(new(mockClient), storage.NewMemory())
		s.updateSchedule = "not a schedule"
		_, err := s.startScheduler(context.Background())
		assert.Error(t, err)
	})

	t.Run("runs", func(t *testing.T) {
		var calls atomic.Int32
		c := new(mockClient)
		c.On("ListMeters", mock.Anything).Run(func(mock.Arguments) {
			calls.Add(1)
		}).Return([]types.Meter{}, nil)

		s := newTestServer(c, storage.NewMemory())
		s.updateSchedule = "@every 1s"
		sched, err := s.startScheduler(context.Background())
		require.NoError(t, err)
		defer func() { <-sched.Stop().Done() }()

		require.Eventually(t, func() bool {
			return calls.Load() > 0
		}, 5*time.Second, 50*time.Millisecond)
	})
}
