package ziparchive

import (
	"encoding/binary"
	"io"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/zipfmt"
)

// NextFile advances a ModeStreamed archive's forward-only parse until
// a local file header yields a file not yet matched by any existing
// logical file. Non-file records (directory entries, the central
// directory itself) are consumed too; once the central directory
// signature is seen the archive is marked Complete and NextFile
// returns (nil, false, nil).
func (a *Archive) NextFile() (*LogicalFile, bool, error) {
	if a.Mode != ModeStreamed {
		return nil, false, ripfs.E(ripfs.Unsupported, "nextfile", nil)
	}
	for {
		a.mu.Lock()
		complete := a.Complete
		a.mu.Unlock()
		if complete {
			return nil, false, nil
		}

		sig, err := zipfmt.NextSig(a.stream)
		if err != nil {
			if err == io.EOF {
				a.mu.Lock()
				a.Complete = true
				a.mu.Unlock()
				return nil, false, nil
			}
			return nil, false, ripfs.E(ripfs.IOError, "nextfile", err)
		}

		switch sig {
		case zipfmt.SigCentralDir, zipfmt.SigEndCentralDir, zipfmt.SigZip64EndCDir, zipfmt.SigZip64Locator:
			// The central directory (or its trailer) appearing means no
			// more local file headers will follow in a well-formed
			// stream; we don't re-derive entries from it since every
			// file has already been seen via its local header.
			a.mu.Lock()
			a.Complete = true
			a.mu.Unlock()
			return nil, false, nil

		case zipfmt.SigLocalFile:
			rest := make([]byte, localFileHeaderRestSize)
			if _, err := io.ReadFull(a.stream, rest); err != nil {
				return nil, false, ripfs.E(ripfs.IOError, "nextfile", err)
			}
			nameLen := int(binary.LittleEndian.Uint16(rest[22:24]))
			extraLen := int(binary.LittleEndian.Uint16(rest[24:26]))
			tail := make([]byte, nameLen+extraLen)
			if _, err := io.ReadFull(a.stream, tail); err != nil {
				return nil, false, ripfs.E(ripfs.IOError, "nextfile", err)
			}
			full := make([]byte, 0, 4+len(rest)+len(tail))
			full = append(full, 'P', 'K', 0x03, 0x04)
			full = append(full, rest...)
			full = append(full, tail...)
			lfh, _, err := zipfmt.ParseLocalFileHeader(full)
			if err != nil {
				return nil, false, ripfs.E(ripfs.CorruptArchive, "nextfile", err)
			}

			isDir := len(lfh.Name) > 0 && lfh.Name[len(lfh.Name)-1] == '/'

			a.mu.Lock()
			stem, number, last := SplitPieceName(lfh.Name, a.OpenPackage)
			key := stem
			if a.IgnoreCase {
				key = lowerASCII(key)
			}
			lf, existed := a.files[key]
			if !isDir {
				if !existed {
					lf = newLogicalFile(a, stem)
					a.files[key] = lf
					a.order = append(a.order, key)
				}
				lf.addPiece(&Piece{
					Number:       number,
					Last:         last,
					LFHOffset:    -1, // no seekable backing; data follows immediately in-stream
					Method:       lfh.Method,
					Flags:        lfh.Flags,
					CRC32:        lfh.CRC32,
					Compressed:   uint64(lfh.CompressedSize),
					Uncompressed: uint64(lfh.UncompressedSize),
					fromArchive:  true,
				})
			}
			a.mu.Unlock()

			if !isDir && !existed {
				return lf, true, nil
			}
			// A new piece of an already-known logical file, or a
			// directory entry: keep scanning.
		}
	}
}

const localFileHeaderRestSize = 26 // everything after the 4-byte signature, before name/extra
