package page

import "bytes"

// Buffer accumulates the output of one page instance. Besides plain appends it
// keeps a stack of saved contents so a section can render into an empty buffer
// in the middle of a layout and hand the surrounding output back untouched.
type Buffer struct {
	buf   bytes.Buffer
	saved [][]byte
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

// WriteString appends s.
func (b *Buffer) WriteString(s string) (int, error) {
	return b.buf.WriteString(s)
}

// String returns a snapshot of the current contents.
func (b *Buffer) String() string {
	return b.buf.String()
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// Reset clears the current contents. Saved levels are kept.
func (b *Buffer) Reset() {
	b.buf.Reset()
}

// Depth reports how many saved levels are pending a Pop.
func (b *Buffer) Depth() int {
	return len(b.saved)
}

// Push saves the current contents and clears the buffer.
func (b *Buffer) Push() {
	saved := make([]byte, b.buf.Len())
	copy(saved, b.buf.Bytes())
	b.saved = append(b.saved, saved)
	b.buf.Reset()
}

// Pop returns what was written since the matching Push and restores the
// contents saved by it. Pop without a pending Push returns the contents and
// leaves the buffer empty.
func (b *Buffer) Pop() string {
	captured := b.buf.String()
	b.buf.Reset()
	if n := len(b.saved); n > 0 {
		b.buf.Write(b.saved[n-1])
		b.saved = b.saved[:n-1]
	}
	return captured
}

// Capture runs fn against an empty buffer and returns what it wrote. The
// previous contents are restored even when fn fails.
func (b *Buffer) Capture(fn func() error) (string, error) {
	b.Push()
	err := fn()
	out := b.Pop()
	if err != nil {
		return "", err
	}
	return out, nil
}
