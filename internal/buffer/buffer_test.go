package buffer

import (
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func BenchmarkBuffer(b *testing.B) {
	buff := New(1024)
	smallString := []byte(strings.Repeat("a", 1023))
	bigString := []byte(strings.Repeat("a", 4095))

	b.Run("no overflow", func(b *testing.B) {
		b.ReportAllocs()
		b.SetBytes(int64(len(smallString)))
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			buff.Append(smallString)
			_ = buff.Retrieve(len(smallString))
		}
	})

	b.Run("with overflow", func(b *testing.B) {
		b.ReportAllocs()
		b.SetBytes(int64(len(bigString)))
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			buff.Append(bigString)
			_ = buff.Retrieve(len(bigString))
			buff.memory = buff.memory[:1024:1024]
			buff.readPos, buff.writePos = 0, 0
		}
	})
}

func socketpair(t *testing.T) (int, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	return fds[0], fds[1]
}

func TestBuffer(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		buff := New(8)
		parts := []string{"Hello", ", ", "World", "!", strings.Repeat("x", 100)}
		for _, part := range parts {
			buff.AppendString(part)
		}

		for _, part := range parts {
			require.Equal(t, part, string(buff.Peek()[:len(part)]))
			require.NoError(t, buff.Retrieve(len(part)))
		}

		require.Zero(t, buff.ReadableBytes())
	})

	t.Run("cursors", func(t *testing.T) {
		buff := New(16)
		require.Equal(t, 16, buff.WritableBytes())
		buff.AppendString("Hello")
		require.Equal(t, 5, buff.ReadableBytes())
		require.Equal(t, 11, buff.WritableBytes())
		require.NoError(t, buff.Retrieve(2))
		require.Equal(t, 2, buff.ReclaimableBytes())
		require.Equal(t, "llo", string(buff.Peek()))
	})

	t.Run("compaction preserves content", func(t *testing.T) {
		buff := New(10)
		buff.AppendString("0123456789")
		require.NoError(t, buff.Retrieve(6))
		// 4 unread, 6 reclaimable, 0 writable. Asking for 5 must compact instead of grow
		buff.EnsureWritable(5)
		require.Equal(t, 10, buff.Cap())
		require.Equal(t, 4, buff.ReadableBytes())
		require.Equal(t, "6789", string(buff.Peek()))
		require.Zero(t, buff.ReclaimableBytes())
		require.Equal(t, 6, buff.WritableBytes())
	})

	t.Run("growth never truncates", func(t *testing.T) {
		buff := New(4)
		buff.AppendString("abcd")
		require.NoError(t, buff.Retrieve(1))
		buff.EnsureWritable(100)
		require.GreaterOrEqual(t, buff.WritableBytes(), 100)
		require.Equal(t, "bcd", string(buff.Peek()))

		payload := uniuri.NewLen(100)
		buff.AppendString(payload)
		require.Equal(t, "bcd"+payload, string(buff.Peek()))
	})

	t.Run("append buffer", func(t *testing.T) {
		src, dst := New(4), New(4)
		src.AppendString("Hello, world")
		require.NoError(t, src.Retrieve(7))
		dst.AppendString("> ")
		dst.AppendBuffer(src)
		require.Equal(t, "> world", string(dst.Peek()))
		require.Equal(t, "world", string(src.Peek()))
	})

	t.Run("retrieve out of range", func(t *testing.T) {
		buff := New(4)
		buff.AppendString("abc")
		require.ErrorIs(t, buff.Retrieve(4), ErrOutOfRange)
		require.ErrorIs(t, buff.Retrieve(-1), ErrOutOfRange)
		require.Equal(t, "abc", string(buff.Peek()))
	})

	t.Run("retrieve until", func(t *testing.T) {
		buff := New(16)
		buff.AppendString("line\r\nrest")
		data := buff.Peek()
		require.NoError(t, buff.RetrieveUntil(data[6:]))
		require.Equal(t, "rest", string(buff.Peek()))
	})

	t.Run("retrieve all", func(t *testing.T) {
		buff := New(8)
		buff.AppendString("Hello")
		require.NoError(t, buff.Retrieve(1))
		require.Equal(t, "ello", buff.RetrieveAllToString())
		require.Zero(t, buff.ReadableBytes())
		require.Zero(t, buff.ReclaimableBytes())
		require.Equal(t, make([]byte, 8), buff.memory)
	})
}

func TestBufferFd(t *testing.T) {
	t.Run("read into tail", func(t *testing.T) {
		a, b := socketpair(t)
		_, err := unix.Write(b, []byte("GET / HTTP/1.1\r\n"))
		require.NoError(t, err)

		buff := New(1024)
		n, err := buff.ReadFd(a)
		require.NoError(t, err)
		require.Equal(t, 16, n)
		require.Equal(t, "GET / HTTP/1.1\r\n", string(buff.Peek()))
	})

	t.Run("read overflowing into scratch", func(t *testing.T) {
		a, b := socketpair(t)
		payload := uniuri.NewLen(3000)
		_, err := unix.Write(b, []byte(payload))
		require.NoError(t, err)

		buff := New(16)
		buff.AppendString("prefix")
		n, err := buff.ReadFd(a)
		require.NoError(t, err)
		require.Equal(t, len(payload), n)
		require.Equal(t, "prefix"+payload, string(buff.Peek()))
	})

	t.Run("would block", func(t *testing.T) {
		a, _ := socketpair(t)
		buff := New(16)
		n, err := buff.ReadFd(a)
		require.ErrorIs(t, err, unix.EAGAIN)
		require.Zero(t, n)
	})

	t.Run("write advances read cursor", func(t *testing.T) {
		a, b := socketpair(t)
		buff := New(16)
		buff.AppendString("HTTP/1.1 200 OK\r\n")
		n, err := buff.WriteFd(a)
		require.NoError(t, err)
		require.Equal(t, 17, n)
		require.Zero(t, buff.ReadableBytes())

		got := make([]byte, 64)
		n, err = unix.Read(b, got)
		require.NoError(t, err)
		require.Equal(t, "HTTP/1.1 200 OK\r\n", string(got[:n]))
	})
}
