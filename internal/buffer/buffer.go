package buffer

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// ScratchSize is the size of the auxiliary region used by ReadFd, so a single read can absorb
// more bytes than currently fit into the buffer.
const ScratchSize = 64 * 1024

var ErrOutOfRange = errors.New("buffer: retrieving more bytes than readable")

var scratchPool = sync.Pool{
	New: func() any {
		return new([ScratchSize]byte)
	},
}

// Buffer is a growable byte store with independent read and write cursors. Unread bytes live
// in memory[readPos:writePos], bytes before readPos may be reclaimed by compaction.
//
// Buffer isn't safe for concurrent use. It is owned by a single connection, which in its
// turn is owned by a single worker at a time.
type Buffer struct {
	memory   []byte
	readPos  int
	writePos int
}

func New(size int) *Buffer {
	return &Buffer{
		memory: make([]byte, size),
	}
}

// WritableBytes returns how many bytes fit after the write cursor without growing.
func (b *Buffer) WritableBytes() int {
	return len(b.memory) - b.writePos
}

// ReadableBytes returns the amount of unread bytes.
func (b *Buffer) ReadableBytes() int {
	return b.writePos - b.readPos
}

// ReclaimableBytes returns the amount of already read bytes before the read cursor.
func (b *Buffer) ReclaimableBytes() int {
	return b.readPos
}

// Cap returns the size of the backing store.
func (b *Buffer) Cap() int {
	return len(b.memory)
}

// Peek returns the unread region without moving the read cursor. The slice stays valid
// only until the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.memory[b.readPos:b.writePos]
}

// EnsureWritable guarantees at least n contiguous bytes after the write cursor.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// makeSpace either grows the backing store or moves the unread region to the beginning.
// Neither touches the content or the amount of readable bytes.
func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.ReclaimableBytes() < n {
		grown := make([]byte, b.writePos+n+1)
		copy(grown, b.memory[:b.writePos])
		b.memory = grown
		return
	}

	readable := copy(b.memory, b.memory[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}

func (b *Buffer) hasWritten(n int) {
	b.writePos += n
}

// Append copies the data after the write cursor, growing the buffer if necessary.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	b.hasWritten(copy(b.memory[b.writePos:], data))
}

func (b *Buffer) AppendString(str string) {
	b.EnsureWritable(len(str))
	b.hasWritten(copy(b.memory[b.writePos:], str))
}

// AppendBuffer appends unread bytes of another buffer. The other buffer isn't modified.
func (b *Buffer) AppendBuffer(other *Buffer) {
	b.Append(other.Peek())
}

// Retrieve advances the read cursor by n bytes.
func (b *Buffer) Retrieve(n int) error {
	if n < 0 || n > b.ReadableBytes() {
		return ErrOutOfRange
	}

	b.readPos += n
	return nil
}

// RetrieveUntil retrieves everything before rest, which must be a tail of the slice
// returned by Peek.
func (b *Buffer) RetrieveUntil(rest []byte) error {
	return b.Retrieve(b.ReadableBytes() - len(rest))
}

// RetrieveAll zeroes the store and resets both cursors.
func (b *Buffer) RetrieveAll() {
	clear(b.memory)
	b.readPos = 0
	b.writePos = 0
}

// RetrieveAllToString returns a copy of the unread bytes and resets the buffer.
func (b *Buffer) RetrieveAllToString() string {
	str := string(b.Peek())
	b.RetrieveAll()

	return str
}

// ReadFd performs a single scatter read into the writable tail and a 64KiB scratch region.
// Bytes landed in the scratch region are appended afterwards, growing the buffer if needed.
// On failure the returned error is the raw unix.Errno.
func (b *Buffer) ReadFd(fd int) (n int, err error) {
	scratch := scratchPool.Get().(*[ScratchSize]byte)
	defer scratchPool.Put(scratch)

	writable := b.WritableBytes()
	n, err = unix.Readv(fd, [][]byte{b.memory[b.writePos:], scratch[:]})
	if err != nil {
		return 0, err
	}

	if n <= writable {
		b.hasWritten(n)
	} else {
		b.hasWritten(writable)
		b.Append(scratch[:n-writable])
	}

	return n, nil
}

// WriteFd writes the unread region with a single write call and advances the read cursor
// by the amount actually written.
func (b *Buffer) WriteFd(fd int) (n int, err error) {
	n, err = unix.Write(fd, b.Peek())
	if err != nil {
		return 0, err
	}

	b.readPos += n
	return n, nil
}
