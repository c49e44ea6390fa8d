// Package iox holds small io helpers shared by the wire codec and the
// stream layer.
package iox

import "io"

// LimitReader creates a new [LimitedReader].
func LimitReader(r io.Reader, n uint64) *LimitedReader { return &LimitedReader{r, n} }

// LimitedReader is a uint64 port of [io.LimitedReader].
type LimitedReader struct {
	R io.Reader // underlying reader
	N uint64    // max bytes remaining
}

func (l *LimitedReader) Read(p []byte) (n int, err error) {
	if l.N == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > l.N {
		p = p[:l.N]
	}
	n, err = l.R.Read(p)
	l.N -= uint64(n)
	return
}

// CountingReader counts bytes handed out by the underlying reader.
type CountingReader struct {
	R io.Reader
	N uint64
}

func (c *CountingReader) Read(p []byte) (n int, err error) {
	n, err = c.R.Read(p)
	c.N += uint64(n)
	return
}

// DiscardLimit reads and throws away up to limit bytes from r.
// It reports whether r was fully drained (EOF seen within the limit).
func DiscardLimit(r io.Reader, limit uint64) (drained bool, err error) {
	n, err := io.CopyN(io.Discard, r, int64(limit))
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if uint64(n) < limit {
		return true, nil
	}

	// Limit hit. Peek one byte to distinguish "exactly drained" from
	// "more remains".
	var b [1]byte
	_, err = r.Read(b[:])
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
