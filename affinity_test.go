package rhea

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffinitySetGetReset(t *testing.T) {
	initTest(t)
	defer func() { require.NoError(t, ResetAffinity()) }()

	require.NoError(t, SetAffinity(AffinitySettings{
		Cores: CoresBig,
		Pin:   true,
		Mode:  AffinityOverrideLocal,
	}))
	got := GetAffinity()
	assert.Equal(t, CoresBig, got.Cores)
	assert.True(t, got.Pin)
	assert.Equal(t, AffinityOverrideLocal, got.Mode)

	require.NoError(t, ResetAffinity())
	got = GetAffinity()
	assert.Equal(t, CoresAll, got.Cores)
	assert.Equal(t, AffinityAllowLocal, got.Mode)
}

func TestAffinityWithoutRuntime(t *testing.T) {
	require.NoError(t, Shutdown())
	defer func() { require.NoError(t, Init(Config{})) }()
	assert.ErrorIs(t, SetAffinity(AffinitySettings{}), ErrNotRunning)
	assert.ErrorIs(t, ResetAffinity(), ErrNotRunning)
	got := GetAffinity()
	assert.Equal(t, CoresAll, got.Cores)
}

func TestExecuteOnRunsSynchronously(t *testing.T) {
	initTest(t)
	ran := false
	err := ExecuteOn(AffinitySettings{Cores: CoresAll}, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestExecuteOnPropagatesError(t *testing.T) {
	initTest(t)
	want := NewInvalidArgError("test", "sentinel")
	err := ExecuteOn(AffinitySettings{Cores: CoresLittle}, func() error {
		return want
	})
	assert.ErrorIs(t, err, want)
}

// Hints stay advisory under allow-local mode: little-hinted work completes
// even when the pool has no little workers.
func TestHintedWorkCompletesWithoutMatchingCluster(t *testing.T) {
	withFreshRuntime(t, Config{BigWorkers: 2, LittleWorkers: 0}, func() {
		tk, err := TryCreateTask(func(tc *TaskContext) error { return nil },
			WithAttrs(AttrLittleCore))
		require.NoError(t, err)
		require.NoError(t, tk.Launch())
		require.NoError(t, tk.WaitFor())
		tk.ReleaseRef()
	})
}
