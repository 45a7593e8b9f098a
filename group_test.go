package rhea

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupWaitIdle(t *testing.T) {
	initTest(t)
	g, err := CreateGroup("idle")
	require.NoError(t, err)
	defer g.ReleaseRef()
	// No tasks: WaitFor returns immediately.
	require.NoError(t, g.WaitFor())
}

func TestGroupWaitsForAllTasks(t *testing.T) {
	initTest(t)
	g, err := CreateGroup("batch")
	require.NoError(t, err)
	defer g.ReleaseRef()

	var done atomic.Int32
	for i := 0; i < 16; i++ {
		tk := CreateTask(func(tc *TaskContext) error {
			done.Add(1)
			return nil
		})
		require.NoError(t, tk.LaunchInto(g))
		tk.ReleaseRef()
	}
	require.NoError(t, g.WaitFor())
	assert.Equal(t, int32(16), done.Load())
}

// Cancel a group, then launch a task into it: the task terminates Canceled
// without executing user code, and the group reports GroupCanceled.
func TestCancelGroupBeforeLaunch(t *testing.T) {
	initTest(t)
	g, err := CreateGroup("doomed")
	require.NoError(t, err)
	defer g.ReleaseRef()

	g.Cancel()
	assert.True(t, g.Canceled())

	var ran atomic.Bool
	tk := CreateTask(func(tc *TaskContext) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, tk.LaunchInto(g))
	assert.True(t, IsCanceled(tk.WaitFor()))
	assert.Equal(t, StateCanceled, tk.State())
	assert.False(t, ran.Load())
	tk.ReleaseRef()

	err = g.WaitFor()
	assert.ErrorIs(t, err, ErrGroupCanceled)
}

func TestGroupCancelIsIdempotent(t *testing.T) {
	initTest(t)
	g, err := CreateGroup("twice")
	require.NoError(t, err)
	defer g.ReleaseRef()
	g.Cancel()
	g.Cancel()
	assert.True(t, g.Canceled())
}

func TestGroupAggregatesErrors(t *testing.T) {
	initTest(t)
	g, err := CreateGroup("failures")
	require.NoError(t, err)
	defer g.ReleaseRef()

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		tk := CreateTask(func(tc *TaskContext) error { return boom })
		require.NoError(t, tk.LaunchInto(g))
		tk.ReleaseRef()
	}
	ok := CreateTask(func(tc *TaskContext) error { return nil })
	require.NoError(t, ok.LaunchInto(g))
	ok.ReleaseRef()

	err = g.WaitFor()
	require.Error(t, err)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	total := 0
	for _, n := range agg.Counts {
		total += n
	}
	assert.Equal(t, 3, total)
}

func TestGroupWaitTimeout(t *testing.T) {
	initTest(t)
	g, err := CreateGroup("slow")
	require.NoError(t, err)
	defer g.ReleaseRef()

	gate := make(chan struct{})
	tk := CreateTask(func(tc *TaskContext) error {
		<-gate
		return nil
	}, WithAttrs(AttrBlocking))
	require.NoError(t, tk.LaunchInto(g))
	assert.ErrorIs(t, g.WaitForTimeout(10*time.Millisecond), ErrTimeout)
	close(gate)
	require.NoError(t, tk.WaitFor())
	require.NoError(t, g.WaitFor())
	tk.ReleaseRef()
}

func TestTaskInMultipleGroups(t *testing.T) {
	initTest(t)
	g1, err := CreateGroup("g1")
	require.NoError(t, err)
	defer g1.ReleaseRef()
	g2, err := CreateGroup("g2")
	require.NoError(t, err)
	defer g2.ReleaseRef()

	tk := CreateTask(func(tc *TaskContext) error { return nil })
	require.NoError(t, tk.JoinGroup(g1))
	require.NoError(t, tk.JoinGroup(g2))
	require.NoError(t, tk.JoinGroup(g1)) // idempotent
	require.NoError(t, tk.Launch())
	require.NoError(t, tk.WaitFor())
	tk.ReleaseRef()
	require.NoError(t, g1.WaitFor())
	require.NoError(t, g2.WaitFor())
}

// Canceling a contributor cancels tasks joined to the meet, because a meet
// group observes its parents' cancellation.
func TestMeetSeesParentCancellation(t *testing.T) {
	initTest(t)
	a, err := CreateGroup("parent-a")
	require.NoError(t, err)
	defer a.ReleaseRef()
	b, err := CreateGroup("parent-b")
	require.NoError(t, err)
	defer b.ReleaseRef()

	m, err := Intersect(a, b)
	require.NoError(t, err)
	defer m.ReleaseRef()

	a.Cancel()
	assert.True(t, m.Canceled())

	tk := CreateTask(func(tc *TaskContext) error { return nil })
	require.NoError(t, tk.LaunchInto(m))
	assert.True(t, IsCanceled(tk.WaitFor()))
	tk.ReleaseRef()
}

func TestRepresentativeTask(t *testing.T) {
	initTest(t)
	g, err := CreateGroup("rep")
	require.NoError(t, err)
	defer g.ReleaseRef()
	assert.Nil(t, g.Representative())

	tk := CreateTask(func(tc *TaskContext) error { return nil })
	g.SetRepresentative(tk)
	assert.Same(t, tk, g.Representative())
	require.NoError(t, tk.Launch())
	require.NoError(t, tk.WaitFor())
	tk.ReleaseRef()
}
