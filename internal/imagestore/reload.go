package imagestore

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
)

// reload implements the single-loader protocol: under the store
// mutex, if the block is already IsLoading we wait on loadCond
// (interruptible) and recheck; otherwise we mark it loading, release
// the mutex, fetch+decompress, and broadcast completion. Concurrent
// callers are collapsed onto one fetch via the store's singleflight
// group, which gives the same "only one loader, everyone else waits
// and shares the result" behavior without hand-rolling the recheck
// loop for the common case; we still honor the interrupt flag before
// ever entering the group, so an already-interrupted caller never
// blocks on someone else's fetch.
func (b *Block) reload() error {
	s := b.plane.store

	if s.interrupt.IsSet() {
		return ripfs.E(ripfs.Interrupted, "reload", nil)
	}

	_, err, _ := s.loadGroup.Do(b.key(), func() (interface{}, error) {
		s.mu.Lock()
		if !b.moveableLocked() {
			s.mu.Unlock()
			return nil, nil
		}
		// Wait out any loader that raced us between the IsSet check
		// above and the group entry (can't happen with the same key,
		// but a prior generation's flag might still be set if an
		// earlier reload failed mid-flight).
		for b.Flags&IsLoading != 0 {
			if !s.waitLoadLocked() {
				s.mu.Unlock()
				return nil, ripfs.E(ripfs.Interrupted, "reload", nil)
			}
		}
		if !b.moveableLocked() {
			s.mu.Unlock()
			return nil, nil
		}
		b.Flags |= IsLoading
		storage, compression := b.Storage, b.Compression
		cdata := b.Cdata
		file, foffset, cbytes := b.File, b.Foffset, b.Cbytes
		uniformColor := b.UniformColor
		tbytes := b.Tbytes
		s.mu.Unlock()

		data, err := fetch(s, storage, compression, cdata, file, foffset, cbytes, uniformColor, tbytes)

		s.mu.Lock()
		b.Flags &^= IsLoading
		if err == nil {
			if bl := b.Blist; bl == nil || bl.Abytes < tbytes {
				newBl, aerr := s.findBlist(tbytes, b.plane, b.Bx, s.Flags&DESPERATE != 0)
				if aerr != nil || newBl == nil {
					s.loadCond.Broadcast()
					s.mu.Unlock()
					if aerr == nil {
						aerr = ripfs.E(ripfs.OutOfMemory, "reload", nil)
					}
					return nil, aerr
				}
				newBl.Block = b
				b.Blist = newBl
			}
			b.Data = b.Blist.Data[:len(data)]
			copy(b.Data, data)
			b.Storage = StorageMemory
			b.Compression = CompressionNone
			b.Cdata = nil
			b.File = nil
			b.Flags |= WriteComplete
			// A freshly-reloaded blist no longer belongs to the
			// global pool even if it once did.
			b.Blist.Global = false
		}
		s.loadCond.Broadcast()
		s.mu.Unlock()
		return nil, err
	})
	return err
}

// waitLoadLocked waits on loadCond, returning false if the store's
// interrupt flag is set when the wait would otherwise block forever.
// Must be called with s.mu held; re-acquires it before returning.
func (s *Store) waitLoadLocked() bool {
	if s.interrupt.IsSet() {
		return false
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-s.interrupt.C():
			s.mu.Lock()
			s.loadCond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()
	s.loadCond.Wait()
	close(done)
	return !s.interrupt.IsSet()
}

// fetch performs the actual unlocked I/O + decompression for reload,
// covering four cases: memory-compressed (in-place inflate),
// disk+uncompressed (file read), disk+compressed (file read into a
// scratch buffer then decompress), uniform-variant (expand scalar).
func fetch(s *Store, storage Storage, compression Compression, cdata []byte, file *ImFile, foffset int64, cbytes int, uniformColor uint16, tbytes int) ([]byte, error) {
	switch storage {
	case StorageUniformVariant:
		xbytes := tbytes
		return expandUniformRow(uniformColor, xbytes, s.Bpp), nil

	case StorageMemory:
		// compressed-in-memory: inflate cdata.
		return decompress(compression, cdata, tbytes)

	case StorageDisk:
		raw := make([]byte, cbytes)
		if err := file.ReadAt(raw, foffset); err != nil {
			return nil, ripfs.E(ripfs.IOError, "reload", err)
		}
		if compression == CompressionNone || compression == CompressionCopy {
			return raw, nil
		}
		return decompress(compression, raw, tbytes)

	default:
		return nil, ripfs.E(ripfs.Internal, "reload", nil)
	}
}

func decompress(c Compression, cdata []byte, wantBytes int) ([]byte, error) {
	if c == CompressionNone || c == CompressionCopy {
		out := make([]byte, len(cdata))
		copy(out, cdata)
		return out, nil
	}
	fr := flate.NewReader(bytes.NewReader(cdata))
	defer fr.Close()
	out := make([]byte, 0, wantBytes)
	buf := make([]byte, 4096)
	for {
		n, err := fr.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ripfs.E(ripfs.IOError, "decompress", err)
		}
	}
	return out, nil
}
