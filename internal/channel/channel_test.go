//go:build linux || darwin || freebsd

package channel

import (
	"bytes"
	"testing"

	"github.com/GriffinCanCode/shmbridge/internal/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChannel(t *testing.T, dir string, mode shm.Mode, capacity int) *Channel {
	t.Helper()
	ch, err := Open(Config{Name: "mailbox", Mode: mode, Capacity: capacity, Dir: dir}, nil)
	require.NoError(t, err)
	return ch
}

func TestWriteReadRoundTrip(t *testing.T) {
	ch := newChannel(t, t.TempDir(), shm.ReadWrite, 128)

	payloads := [][]byte{
		[]byte(`{"a":1}`),
		[]byte("x"),
		bytes.Repeat([]byte("z"), 124),
		[]byte(`"short"`),
	}

	for _, p := range payloads {
		require.NoError(t, ch.Write(p))
		got, err := ch.Read()
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestWriteTooLargeKeepsPriorContent(t *testing.T) {
	ch := newChannel(t, t.TempDir(), shm.ReadWrite, 64)

	require.NoError(t, ch.Write([]byte(`{"keep":true}`)))

	err := ch.Write(bytes.Repeat([]byte("a"), 61))
	require.Error(t, err)
	assert.ErrorIs(t, err, shm.ErrTooLarge)

	got, err := ch.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"keep":true}`, string(got))
}

func TestClearThenReadIsEmpty(t *testing.T) {
	for _, capacity := range []int{shm.MinCapacity, 64, shm.DefaultCapacity} {
		ch := newChannel(t, t.TempDir(), shm.ReadWrite, capacity)

		require.NoError(t, ch.Write([]byte("1")))
		require.NoError(t, ch.Clear())

		_, err := ch.Read()
		assert.ErrorIs(t, err, shm.ErrEmpty, "capacity %d", capacity)
	}
}

func TestClearLeavesStaleBytes(t *testing.T) {
	dir := t.TempDir()
	ch := newChannel(t, dir, shm.ReadWrite, 64)

	require.NoError(t, ch.Write([]byte("stale")))
	require.NoError(t, ch.Clear())

	err := shm.With("mailbox", shm.ReadOnly, shm.Options{Dir: dir}, func(seg *shm.Segment) error {
		raw, err := seg.ReadAt(shm.FrameHeaderSize, 5)
		require.NoError(t, err)
		assert.Equal(t, "stale", string(raw))
		return nil
	})
	require.NoError(t, err)
}

func TestReadOnlyChannel(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(Config{Name: "mailbox", Mode: shm.ReadOnly, Dir: dir}, nil)
	assert.ErrorIs(t, err, shm.ErrNotFound)

	rw := newChannel(t, dir, shm.ReadWrite, 64)
	require.NoError(t, rw.Write([]byte(`[1,2,3]`)))

	ro := newChannel(t, dir, shm.ReadOnly, 0)
	got, err := ro.Read()
	require.NoError(t, err)
	assert.Equal(t, `[1,2,3]`, string(got))

	assert.ErrorIs(t, ro.Write([]byte("x")), shm.ErrReadOnlyMode)
	assert.ErrorIs(t, ro.Clear(), shm.ErrReadOnlyMode)
}

func TestPeekNeverRecreatesSegment(t *testing.T) {
	dir := t.TempDir()
	ch := newChannel(t, dir, shm.ReadWrite, 64)
	require.NoError(t, ch.Write([]byte(`{"v":1}`)))

	got, err := ch.Peek()
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(got))

	require.NoError(t, shm.Unlink(dir, "mailbox"))

	_, err = ch.Peek()
	assert.ErrorIs(t, err, shm.ErrNotFound)
	assert.False(t, ch.Info().HasData)
	assert.False(t, shm.Exists(dir, "mailbox"))

	// Read keeps the channel's own mode and does recreate it.
	_, err = ch.Read()
	assert.ErrorIs(t, err, shm.ErrEmpty)
	assert.True(t, shm.Exists(dir, "mailbox"))
}

func TestNewSegmentReadsEmpty(t *testing.T) {
	ch := newChannel(t, t.TempDir(), shm.ReadWrite, 0)

	_, err := ch.Read()
	assert.ErrorIs(t, err, shm.ErrEmpty)
}

func TestCorruptLengthIsReported(t *testing.T) {
	dir := t.TempDir()
	ch := newChannel(t, dir, shm.ReadWrite, 64)

	err := shm.With("mailbox", shm.ReadWrite, shm.Options{Dir: dir}, func(seg *shm.Segment) error {
		return seg.WriteAt(0, []byte{0xff, 0xff, 0, 0})
	})
	require.NoError(t, err)

	_, err = ch.Read()
	assert.ErrorIs(t, err, shm.ErrCorrupt)
	assert.False(t, ch.Info().HasData)
}

func TestInfo(t *testing.T) {
	ch := newChannel(t, t.TempDir(), shm.ReadWrite, 256)

	info := ch.Info()
	assert.Equal(t, "mailbox", info.Name)
	assert.Equal(t, "read_write", info.Mode)
	assert.Equal(t, 256, info.Capacity)
	assert.Equal(t, 252, info.MaxSize)
	assert.False(t, info.HasData)
	assert.Empty(t, info.ContentType)

	require.NoError(t, ch.Write([]byte(`{"status":"ok"}`)))
	info = ch.Info()
	assert.True(t, info.HasData)
	assert.Equal(t, "application/json", info.ContentType)
}

func TestInfoMissingSegment(t *testing.T) {
	dir := t.TempDir()
	ch := newChannel(t, dir, shm.ReadWrite, 128)
	require.NoError(t, shm.Unlink(dir, "mailbox"))

	info := ch.Info()
	assert.Equal(t, 0, info.Capacity)
	assert.False(t, info.HasData)
}

func TestCrossProcessLock(t *testing.T) {
	ch, err := Open(Config{Name: "locked", Mode: shm.ReadWrite, Dir: t.TempDir(), CrossProcessLock: true}, nil)
	require.NoError(t, err)

	require.NoError(t, ch.Write([]byte(`{"locked":true}`)))
	got, err := ch.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"locked":true}`, string(got))
	require.NoError(t, ch.Clear())
}
