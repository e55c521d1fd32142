package zipdevice

import (
	"io"
	"os"

	"golang.org/x/exp/mmap"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// seekableSource is what ziparchive.OpenSeekable needs from a backing
// file: random-access reads plus a known total size.
type seekableSource interface {
	io.ReaderAt
	Size() (int64, error)
}

// mmapSource memory-maps the archive file read-only via
// golang.org/x/exp/mmap, avoiding a full read of potentially large
// archives just to scan the central directory.
type mmapSource struct {
	r *mmap.ReaderAt
}

func (m *mmapSource) ReadAt(p []byte, off int64) (int, error) { return m.r.ReadAt(p, off) }
func (m *mmapSource) Size() (int64, error)                    { return int64(m.r.Len()), nil }
func (m *mmapSource) Close() error                             { return m.r.Close() }

func openSeekableSource(path string) (seekableSource, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, ripfs.E(ripfs.IOError, "zipdevice.mount", err)
	}
	return &mmapSource{r: r}, nil
}

// openStreamedSource opens path as a forward-only stream for the
// DataSource parameter: in this standalone CLI context, DataSource
// simply names a local file to stream.
func openStreamedSource(path string) (io.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ripfs.E(ripfs.IOError, "zipdevice.mount", err)
	}
	return f, nil
}
