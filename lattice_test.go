package rhea

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureOps(t *testing.T) {
	var a, b, u signature
	a.set(3)
	a.set(130)
	b.set(7)
	u.or(&a, &b)

	assert.True(t, a.subsetOf(&u))
	assert.True(t, b.subsetOf(&u))
	assert.False(t, u.subsetOf(&a))
	assert.Equal(t, 3, u.lowestBit())
	assert.False(t, a.equal(&b))

	var empty signature
	assert.Equal(t, -1, empty.lowestBit())
	assert.True(t, empty.subsetOf(&a))
}

// Property: intersect is canonical. Repeated calls and swapped argument
// order return the same handle.
func TestIntersectCanonical(t *testing.T) {
	initTest(t)
	a, err := CreateGroup("A")
	require.NoError(t, err)
	defer a.ReleaseRef()
	b, err := CreateGroup("B")
	require.NoError(t, err)
	defer b.ReleaseRef()

	m1, err := Intersect(a, b)
	require.NoError(t, err)
	m2, err := Intersect(b, a)
	require.NoError(t, err)
	m3, err := Intersect(a, b)
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Same(t, m1, m3)
	m1.ReleaseRef()
	m2.ReleaseRef()
	m3.ReleaseRef()
}

func TestIntersectIdentityAndSubsumption(t *testing.T) {
	initTest(t)
	a, err := CreateGroup("A")
	require.NoError(t, err)
	defer a.ReleaseRef()
	b, err := CreateGroup("B")
	require.NoError(t, err)
	defer b.ReleaseRef()

	// intersect(A, A) == A
	self, err := Intersect(a, a)
	require.NoError(t, err)
	assert.Same(t, a, self)
	self.ReleaseRef()

	// intersect(A, A^B) == A^B: the meet is already below A.
	m, err := Intersect(a, b)
	require.NoError(t, err)
	sub, err := Intersect(a, m)
	require.NoError(t, err)
	assert.Same(t, m, sub)
	sub.ReleaseRef()
	m.ReleaseRef()
}

func TestMeetLatticeWiring(t *testing.T) {
	initTest(t)
	a, err := CreateGroup("A")
	require.NoError(t, err)
	defer a.ReleaseRef()
	b, err := CreateGroup("B")
	require.NoError(t, err)
	defer b.ReleaseRef()
	c, err := CreateGroup("C")
	require.NoError(t, err)
	defer c.ReleaseRef()

	ab, err := Intersect(a, b)
	require.NoError(t, err)
	defer ab.ReleaseRef()
	abc, err := Intersect(ab, c)
	require.NoError(t, err)
	defer abc.ReleaseRef()

	// A^B^C lies below A^B: canceling A^B cancels A^B^C.
	ab.Cancel()
	assert.True(t, abc.Canceled())
	assert.False(t, a.Canceled())

	// The deeper meet is canonical too.
	again, err := Intersect(c, ab)
	require.NoError(t, err)
	assert.Same(t, abc, again)
	again.ReleaseRef()
}

// A task joined to a meet counts toward the meet's observing superiors, so
// waiting on a contributor waits for the meet's tasks.
func TestMeetTasksCountIntoSuperiors(t *testing.T) {
	initTest(t)
	a, err := CreateGroup("A")
	require.NoError(t, err)
	defer a.ReleaseRef()
	b, err := CreateGroup("B")
	require.NoError(t, err)
	defer b.ReleaseRef()
	m, err := Intersect(a, b)
	require.NoError(t, err)
	defer m.ReleaseRef()

	gate := make(chan struct{})
	tk := CreateTask(func(tc *TaskContext) error {
		<-gate
		return nil
	}, WithAttrs(AttrBlocking))
	require.NoError(t, tk.LaunchInto(m))

	assert.Greater(t, a.Outstanding(), 0)
	assert.Greater(t, b.Outstanding(), 0)
	close(gate)
	require.NoError(t, tk.WaitFor())
	tk.ReleaseRef()
	require.NoError(t, a.WaitFor())
	require.NoError(t, b.WaitFor())
	assert.Equal(t, 0, m.Outstanding())
}

// A meet created after a task joined an inferior group never sees that
// task's count, and completion retires exactly the groups counted at join.
func TestMeetSplicedAboveAfterJoin(t *testing.T) {
	initTest(t)
	a, err := CreateGroup("a")
	require.NoError(t, err)
	b, err := CreateGroup("b")
	require.NoError(t, err)
	c, err := CreateGroup("c")
	require.NoError(t, err)

	mac, err := Intersect(a, c)
	require.NoError(t, err)
	mabc, err := Intersect(mac, b)
	require.NoError(t, err)

	gate := make(chan struct{})
	tk := CreateTask(func(tc *TaskContext) error {
		<-gate
		return nil
	})
	require.NoError(t, tk.LaunchInto(mabc))

	// a^b sits strictly between {a, b} and a^b^c, so creating it now splices
	// a new superior above a group that already counts a task.
	mab, err := Intersect(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, mab.Outstanding())
	assert.Equal(t, 1, mabc.Outstanding())

	close(gate)
	require.NoError(t, tk.WaitFor())
	tk.ReleaseRef()
	require.NoError(t, mabc.WaitFor())

	assert.Equal(t, 0, mabc.Outstanding())
	assert.Equal(t, 0, mab.Outstanding())
	assert.Equal(t, 0, a.Outstanding())
	for _, g := range []*Group{mab, mabc, mac, c, b, a} {
		g.ReleaseRef()
	}
}
