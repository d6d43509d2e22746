// Package mmapfile wraps a single memory-mapped data file with the lifecycle
// the observation store needs: create empty, map read-only, remap writable,
// grow, flush, close. A zero-length file is held without an actual mapping,
// since mapping zero bytes is not portable.
//
// Growth is not done in place: the current contents are copied forward into
// a sibling ".grow" file, the tail is zero-filled, and the sibling is renamed
// over the original. The rename is atomic on POSIX but the copy window is
// not guarded; callers must serialize writers.
package mmapfile

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// File is a memory-mapped file handle. It is not safe for concurrent use.
type File struct {
	path     string
	f        *os.File
	m        mmap.MMap
	size     int64
	writable bool
}

// Create makes a new zero-length file at path and returns a read-only
// handle. It fails if the file already exists.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: create %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("mmapfile: create %s: %w", path, err)
	}
	return Open(path)
}

// Open maps an existing file read-only.
func Open(path string) (*File, error) {
	h := &File{path: path}
	if err := h.open(false); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *File) open(writable bool) error {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(h.path, flag, 0o644)
	if err != nil {
		return fmt.Errorf("mmapfile: open %s: %w", h.path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("mmapfile: stat %s: %w", h.path, err)
	}
	var m mmap.MMap
	if st.Size() > 0 {
		prot := mmap.RDONLY
		if writable {
			prot = mmap.RDWR
		}
		m, err = mmap.Map(f, prot, 0)
		if err != nil {
			f.Close()
			return fmt.Errorf("mmapfile: map %s: %w", h.path, err)
		}
	}
	h.f = f
	h.m = m
	h.size = st.Size()
	h.writable = writable
	return nil
}

// release drops the mapping and file descriptor, keeping the path.
func (h *File) release() error {
	var first error
	if h.m != nil {
		if err := h.m.Unmap(); err != nil && first == nil {
			first = err
		}
		h.m = nil
	}
	if h.f != nil {
		if err := h.f.Close(); err != nil && first == nil {
			first = err
		}
		h.f = nil
	}
	return first
}

// Path returns the backing file path.
func (h *File) Path() string { return h.path }

// Len returns the mapped file size in bytes.
func (h *File) Len() int64 { return h.size }

// Writable reports whether the current mapping is read-write.
func (h *File) Writable() bool { return h.writable }

// Bytes returns the mapped contents. The slice is nil for an empty file and
// is invalidated by Remap, Grow and Close.
func (h *File) Bytes() []byte { return []byte(h.m) }

// Flush commits mapped writes to backing storage.
func (h *File) Flush() error {
	if h.m == nil {
		return nil
	}
	if err := h.m.Flush(); err != nil {
		return fmt.Errorf("mmapfile: flush %s: %w", h.path, err)
	}
	return nil
}

// Remap re-opens the file with the requested protection. Pending writes on a
// writable mapping are flushed first.
func (h *File) Remap(writable bool) error {
	if h.writable == writable && h.f != nil {
		return nil
	}
	if h.writable {
		if err := h.Flush(); err != nil {
			return err
		}
	}
	if err := h.release(); err != nil {
		return fmt.Errorf("mmapfile: remap %s: %w", h.path, err)
	}
	return h.open(writable)
}

// Grow extends the file to newSize bytes, preserving existing contents and
// zero-filling the tail, then remaps with the same protection. Shrinking is
// rejected.
func (h *File) Grow(newSize int64) error {
	if newSize < h.size {
		return fmt.Errorf("mmapfile: grow %s: %d below current size %d", h.path, newSize, h.size)
	}
	if newSize == h.size {
		return nil
	}
	tmp := h.path + ".grow"
	g, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("mmapfile: grow %s: %w", h.path, err)
	}
	if len(h.m) > 0 {
		if _, err := g.Write(h.m); err != nil {
			g.Close()
			os.Remove(tmp)
			return fmt.Errorf("mmapfile: grow %s: copy forward: %w", h.path, err)
		}
	}
	if err := g.Truncate(newSize); err != nil {
		g.Close()
		os.Remove(tmp)
		return fmt.Errorf("mmapfile: grow %s: %w", h.path, err)
	}
	if err := g.Sync(); err != nil {
		g.Close()
		os.Remove(tmp)
		return fmt.Errorf("mmapfile: grow %s: %w", h.path, err)
	}
	if err := g.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("mmapfile: grow %s: %w", h.path, err)
	}

	writable := h.writable
	if err := h.release(); err != nil {
		return fmt.Errorf("mmapfile: grow %s: %w", h.path, err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		return fmt.Errorf("mmapfile: grow %s: %w", h.path, err)
	}
	return h.open(writable)
}

// Close unmaps and closes the file, keeping it on disk.
func (h *File) Close() error {
	if err := h.release(); err != nil {
		return fmt.Errorf("mmapfile: close %s: %w", h.path, err)
	}
	return nil
}

// Remove closes the handle and deletes the backing file.
func (h *File) Remove() error {
	if err := h.release(); err != nil {
		return fmt.Errorf("mmapfile: remove %s: %w", h.path, err)
	}
	if err := os.Remove(h.path); err != nil {
		return fmt.Errorf("mmapfile: remove %s: %w", h.path, err)
	}
	return nil
}
