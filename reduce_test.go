package rhea

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceSum(t *testing.T) {
	initTest(t)
	a := []int{1, 3, 6, 10, 15, 21, 28, 36, 45, 55}
	for run := 0; run < 100; run++ {
		got, err := Reduce(nil, 0, len(a), 1, 0,
			func(acc, i int) int { return acc + a[i] },
			func(x, y int) int { return x + y })
		require.NoError(t, err)
		require.Equal(t, 220, got)
	}
}

func TestReduceLargeRange(t *testing.T) {
	initTest(t)
	const n = 100000
	got, err := Reduce(nil, 0, n, 1, int64(0),
		func(acc int64, i int) int64 { return acc + int64(i) },
		func(x, y int64) int64 { return x + y })
	require.NoError(t, err)
	assert.Equal(t, int64(n)*(n-1)/2, got)
}

// Subtraction is not associative, but fold order still matters: string
// concatenation is associative and order-sensitive, so the parallel result
// must equal the sequential one.
func TestReduceOrderSensitiveCombiner(t *testing.T) {
	initTest(t)
	const n = 5000
	got, err := Reduce(nil, 0, n, 1, "",
		func(acc string, i int) string { return acc + string(rune('a'+i%26)) },
		func(x, y string) string { return x + y })
	require.NoError(t, err)

	want := ""
	for i := 0; i < n; i++ {
		want += string(rune('a' + i%26))
	}
	assert.Equal(t, want, got)
}

func TestReduceStride(t *testing.T) {
	initTest(t)
	// indices 0, 3, 6, 9 of squares
	got, err := Reduce(nil, 0, 10, 3, 0,
		func(acc, i int) int { return acc + i*i },
		func(x, y int) int { return x + y })
	require.NoError(t, err)
	assert.Equal(t, 0+9+36+81, got)
}

func TestReduceEmptyRange(t *testing.T) {
	initTest(t)
	got, err := Reduce(nil, 4, 4, 1, 17,
		func(acc, i int) int { return acc + i },
		func(x, y int) int { return x + y })
	require.NoError(t, err)
	assert.Equal(t, 17, got)
}

func TestReduceInsideTask(t *testing.T) {
	initTest(t)
	var result int
	tk := CreateTask(func(tc *TaskContext) error {
		var err error
		result, err = Reduce(tc, 0, 1000, 1, 0,
			func(acc, i int) int { return acc + 1 },
			func(x, y int) int { return x + y })
		return err
	})
	require.NoError(t, tk.Launch())
	require.NoError(t, tk.WaitFor())
	tk.ReleaseRef()
	assert.Equal(t, 1000, result)
}
