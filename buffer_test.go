package rhea

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBufferHostRoundTrip(t *testing.T) {
	initTest(t)
	buf := NewBuffer[float32](256)
	defer buf.Destroy()

	require.NoError(t, buf.Acquire(CPU, ReadWrite))
	s := buf.Slice()
	require.Len(t, s, 256)
	for i := range s {
		s[i] = float32(i)
	}
	buf.Release()

	require.NoError(t, buf.Acquire(CPU, ReadOnly))
	assert.Equal(t, float32(100), buf.Slice()[100])
	buf.Release()
}

func TestBufferHostData(t *testing.T) {
	initTest(t)
	buf := NewBuffer[int64](16)
	defer buf.Destroy()

	// No arena yet: nothing resident.
	assert.Nil(t, buf.HostData())

	require.NoError(t, buf.Acquire(CPU, WriteOnly))
	buf.Release()
	require.NotNil(t, buf.HostData())
	assert.Len(t, buf.HostData(), 16)
}

func TestBufferBackedByMainRegion(t *testing.T) {
	initTest(t)
	r, err := NewMainRegion(1<<20, 0)
	require.NoError(t, err)
	buf, err := NewBufferRegion[byte](1<<20, r)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, buf.Destroy())
		require.NoError(t, r.Close())
	}()

	require.NoError(t, buf.Acquire(CPU, ReadWrite))
	buf.Slice()[0] = 0xAB
	buf.Release()
	assert.Equal(t, byte(0xAB), r.Bytes()[0])
}

func TestBufferRegionTooSmall(t *testing.T) {
	initTest(t)
	r, err := NewMainRegion(64, 0)
	require.NoError(t, err)
	defer r.Close()
	_, err = NewBufferRegion[int64](64, r) // needs 512 bytes
	assert.True(t, IsInvalidArgError(err))
}

func TestAcquireInvalidArgs(t *testing.T) {
	initTest(t)
	buf := NewBuffer[int32](8)
	defer buf.Destroy()
	assert.True(t, IsInvalidArgError(buf.Acquire(0, ReadWrite)))
	assert.True(t, IsInvalidArgError(buf.Acquire(CPU|GPU, ReadWrite)))
	assert.True(t, IsInvalidArgError(buf.Acquire(GPU|DSP, ReadWrite)))
	assert.ErrorIs(t, buf.Acquire(CPU, AccessMode(9)), ErrInvalidMode)
}

func TestAcquireDeviceNotAvailable(t *testing.T) {
	initTest(t)
	buf := NewBuffer[int32](8)
	defer buf.Destroy()
	err := buf.Acquire(DSP, ReadWrite)
	assert.True(t, IsDeviceNotAvailable(err))
	assert.ErrorIs(t, err, ErrDeviceNotAvailable)
}

func TestReleaseWithoutAcquireIsIdempotent(t *testing.T) {
	initTest(t)
	buf := NewBuffer[int32](8)
	defer buf.Destroy()
	buf.Release()
	buf.Release()
	require.NoError(t, buf.Acquire(CPU, ReadWrite))
	buf.Release()
}

func TestIncompatibleAcquireBlocks(t *testing.T) {
	initTest(t)
	buf := NewBuffer[int32](4)
	defer buf.Destroy()

	require.NoError(t, buf.Acquire(CPU, ReadWrite))
	acquired := make(chan struct{})
	go func() {
		// Blocks until the writer releases.
		if err := buf.Acquire(CPU, ReadWrite); err == nil {
			close(acquired)
			buf.Release()
		}
	}()
	select {
	case <-acquired:
		t.Fatal("second rw acquire succeeded while the first was held")
	default:
	}
	buf.Release()
	<-acquired
}

func TestConcurrentReadersShare(t *testing.T) {
	initTest(t)
	buf := NewBuffer[int32](4)
	defer buf.Destroy()
	require.NoError(t, buf.Acquire(CPU, WriteOnly))
	buf.Release()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := buf.Acquire(CPU, ReadOnly); err == nil {
				buf.Slice()
				buf.Release()
			}
		}()
	}
	wg.Wait()
}

// S6: rw write on the host, ro acquire on the GPU copies exactly once, and a
// following host ro acquire needs no copy because ro does not transfer
// ownership.
func TestDeviceMigrationCopiesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	ex := NewMockExecutor(ctrl)
	ex.EXPECT().Class().Return(GPU).AnyTimes()

	withFreshRuntime(t, Config{}, func() {
		require.NoError(t, RegisterExecutor(ex))

		const n = 1 << 20
		buf, err := NewBufferRegion[byte](n, nil)
		require.NoError(t, err)

		require.NoError(t, buf.Acquire(CPU, ReadWrite))
		host := buf.Slice()
		var sum byte
		for i := range host {
			host[i] = byte(i)
			sum += byte(i)
		}
		buf.Release()

		devStore := make([]byte, n)
		ex.EXPECT().AllocArena(n).Return(ArenaHandle(&devStore), nil).Times(1)
		ex.EXPECT().CopyIn(gomock.Any(), gomock.Any()).DoAndReturn(
			func(dst ArenaHandle, src []byte) error {
				copy(*dst.(*[]byte), src)
				return nil
			}).Times(1)

		require.NoError(t, buf.Acquire(GPU, ReadOnly))
		buf.Release()
		var devSum byte
		for _, b := range devStore {
			devSum += b
		}
		assert.Equal(t, sum, devSum)

		// Host arena is still the owner: no further executor traffic.
		require.NoError(t, buf.Acquire(CPU, ReadOnly))
		assert.Equal(t, byte(42), buf.Slice()[42])
		buf.Release()

		ex.EXPECT().FreeArena(gomock.Any()).Return(nil).Times(1)
		require.NoError(t, buf.Destroy())
	})
}

// Property 3: after a wo/rw acquire on a device, a host rw acquire observes
// the device's writes through a copy-out.
func TestDeviceWritesReachHost(t *testing.T) {
	ctrl := gomock.NewController(t)
	ex := NewMockExecutor(ctrl)
	ex.EXPECT().Class().Return(GPU).AnyTimes()

	withFreshRuntime(t, Config{}, func() {
		require.NoError(t, RegisterExecutor(ex))

		const n = 64
		buf := NewBuffer[byte](n)

		devStore := make([]byte, n)
		ex.EXPECT().AllocArena(n).Return(ArenaHandle(&devStore), nil).Times(1)

		// wo on the device: no copy-in, ownership moves to the GPU.
		require.NoError(t, buf.Acquire(GPU, WriteOnly))
		for i := range devStore {
			devStore[i] = 0x5A
		}
		buf.Release()
		assert.Nil(t, buf.HostData(), "host arena must not own after device wo")

		ex.EXPECT().CopyOut(gomock.Any(), gomock.Any()).DoAndReturn(
			func(dst []byte, src ArenaHandle) error {
				copy(dst, *src.(*[]byte))
				return nil
			}).Times(1)
		require.NoError(t, buf.Acquire(CPU, ReadWrite))
		assert.Equal(t, byte(0x5A), buf.Slice()[17])
		buf.Release()

		ex.EXPECT().FreeArena(gomock.Any()).Return(nil).Times(1)
		require.NoError(t, buf.Destroy())
	})
}

func TestAcquireSetOrderedAndAtomic(t *testing.T) {
	initTest(t)
	a := NewBuffer[int32](4)
	b := NewBuffer[int32](4)
	c := NewBuffer[int32](4)
	defer a.Destroy()
	defer b.Destroy()
	defer c.Destroy()

	// Overlapping sets acquired in opposite declaration order must not
	// deadlock: the canonical order sorts by buffer identity.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		order := []AcquireTarget{a, b, c}
		if i%2 == 1 {
			order = []AcquireTarget{c, b, a}
		}
		wg.Add(1)
		go func(targets []AcquireTarget) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sc, err := AcquireSet(CPU, ReadWrite, targets...)
				if err != nil {
					return
				}
				sc.Release()
			}
		}(order)
	}
	wg.Wait()
}

func TestAcquireScopeReleaseIdempotent(t *testing.T) {
	initTest(t)
	a := NewBuffer[int32](4)
	defer a.Destroy()
	sc, err := AcquireSet(CPU, ReadWrite, a)
	require.NoError(t, err)
	sc.Release()
	sc.Release()
	require.NoError(t, a.Acquire(CPU, ReadWrite))
	a.Release()
}

func TestWithBufferHoldsForTaskDuration(t *testing.T) {
	initTest(t)
	buf := NewBuffer[int32](1)
	defer buf.Destroy()

	require.NoError(t, buf.Acquire(CPU, ReadWrite))
	buf.Slice()[0] = 7
	buf.Release()

	var seen int32
	tk := CreateTask(func(tc *TaskContext) error {
		seen = buf.Slice()[0]
		return nil
	}, WithBuffer(buf, CPU, ReadOnly))
	require.NoError(t, tk.Launch())
	require.NoError(t, tk.WaitFor())
	tk.ReleaseRef()
	assert.Equal(t, int32(7), seen)
}

// Host snapshots taken while another goroutine acquires and releases must
// never observe a half-installed arena set.
func TestHostDataDuringConcurrentAcquires(t *testing.T) {
	initTest(t)
	b := NewBuffer[int64](256)
	defer b.Destroy()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if d := b.HostData(); d != nil {
					_ = d[0] + d[len(d)-1]
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		s, release, err := AcquireSlice(b, CPU, ReadWrite)
		require.NoError(t, err)
		for j := range s {
			s[j] = int64(i)
		}
		release()
	}
	close(stop)
	wg.Wait()

	d := b.HostData()
	require.NotNil(t, d)
	assert.Equal(t, int64(199), d[0])
}
