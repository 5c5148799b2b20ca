package checkout

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineTransitions(t *testing.T) {
	var m Machine
	assert.Equal(t, StateIdle, m.State())

	require.NoError(t, m.Begin())
	assert.Equal(t, StateSubmitting, m.State())
	assert.ErrorIs(t, m.Begin(), ErrCheckoutInProgress)

	m.Release()
	assert.Equal(t, StateSubmitting, m.State(), "release must not skip finish")

	m.Finish(false)
	assert.Equal(t, StateFailed, m.State())
	assert.ErrorIs(t, m.Begin(), ErrCheckoutInProgress)

	m.Release()
	assert.Equal(t, StateIdle, m.State())

	require.NoError(t, m.Begin())
	m.Finish(true)
	assert.Equal(t, StateSuccess, m.State())
	m.Release()
	assert.Equal(t, StateIdle, m.State())
}

func TestMachineAdmitsExactlyOneConcurrentBegin(t *testing.T) {
	var m Machine
	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Begin() == nil {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted)
}

func TestSessionsAreIndependent(t *testing.T) {
	s := NewSessions()
	a := s.Acquire("a")
	require.NoError(t, a.Begin())
	require.NoError(t, s.Acquire("b").Begin())
	assert.Same(t, a, s.Acquire("a"))
	assert.Equal(t, StateSubmitting, s.State("a"))
	assert.Equal(t, StateIdle, s.State("c"))
	assert.Equal(t, 2, s.Len(), "State must not create machines")
}

func TestSessionsDropIdleMachines(t *testing.T) {
	s := NewSessions()

	m := s.Acquire("a")
	held := s.Acquire("a")
	require.NoError(t, m.Begin())
	s.Done("a")
	assert.Equal(t, 1, s.Len(), "still pinned by a second holder")

	m.Finish(true)
	m.Release()
	s.Done("a")
	assert.Zero(t, s.Len())
	assert.NotSame(t, held, s.Acquire("a"))
}

func TestSessionsKeepBusyMachineAfterDone(t *testing.T) {
	s := NewSessions()
	m := s.Acquire("a")
	require.NoError(t, m.Begin())
	s.Done("a")
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, StateSubmitting, s.State("a"))
}
