package nfsmount

import (
	"io"

	"github.com/groupfs/groupfs/internal/graphstore"
)

// graphFile implements billy.File backed by graphstore.Store's value
// column. groupfs has no splice pipeline to protect: every write commits
// straight to the store, the same wholesale-replace contract FSOps.Write
// applies to the FUSE transport.
type graphFile struct {
	id    string
	store *graphstore.Store
	pos   int64
}

func (f *graphFile) Name() string { return f.id }

func (f *graphFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *graphFile) ReadAt(p []byte, off int64) (int, error) {
	value, err := f.store.ReadFileValue(f.id)
	if err != nil {
		return 0, err
	}
	if off >= int64(len(value)) {
		return 0, io.EOF
	}
	n := copy(p, value[off:])
	if off+int64(n) >= int64(len(value)) {
		return n, io.EOF
	}
	return n, nil
}

// Write replaces the stored value wholesale with p, the same contract
// FSOps.Write applies to the FUSE transport.
func (f *graphFile) Write(p []byte) (int, error) {
	value := make([]byte, len(p))
	copy(value, p)
	if err := f.store.WriteFileValue(f.id, value); err != nil {
		return 0, err
	}
	f.pos = int64(len(p))
	return len(p), nil
}

func (f *graphFile) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.pos + offset
	case io.SeekEnd:
		value, err := f.store.ReadFileValue(f.id)
		if err != nil {
			return 0, err
		}
		newPos = int64(len(value)) + offset
	}
	if newPos < 0 {
		newPos = 0
	}
	f.pos = newPos
	return f.pos, nil
}

// Truncate always clears the stored value to absent, regardless of size,
// mirroring FSOps.Truncate.
func (f *graphFile) Truncate(int64) error {
	return f.store.WriteFileValue(f.id, nil)
}

func (f *graphFile) Lock() error   { return nil }
func (f *graphFile) Unlock() error { return nil }
func (f *graphFile) Close() error  { return nil }

// staticFile implements billy.File over an immutable byte slice, used for
// the virtual /_stats.json diagnostics file: there is no graphstore row
// behind it, so Write and Truncate refuse rather than silently discarding
// the caller's data.
type staticFile struct {
	name string
	body []byte
	pos  int64
}

func (f *staticFile) Name() string { return f.name }

func (f *staticFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *staticFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.body)) {
		return 0, io.EOF
	}
	n := copy(p, f.body[off:])
	if off+int64(n) >= int64(len(f.body)) {
		return n, io.EOF
	}
	return n, nil
}

func (f *staticFile) Write([]byte) (int, error) {
	return 0, errReadOnly
}

func (f *staticFile) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.pos + offset
	case io.SeekEnd:
		newPos = int64(len(f.body)) + offset
	}
	if newPos < 0 {
		newPos = 0
	}
	f.pos = newPos
	return f.pos, nil
}

func (f *staticFile) Truncate(int64) error { return errReadOnly }
func (f *staticFile) Lock() error          { return nil }
func (f *staticFile) Unlock() error        { return nil }
func (f *staticFile) Close() error         { return nil }
