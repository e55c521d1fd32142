package zipfmt

import (
	"bytes"
	"io"

	"golang.org/x/xerrors"
)

const scanWindow = 16 * 1024

// FindEndCDir scans backward from the end of a seekable source in
// ~16 KiB windows for the end-of-central-directory signature,
// overlapping consecutive windows by 3 bytes so a signature straddling
// a window boundary is never missed. It returns the absolute offset
// of the signature's first byte.
func FindEndCDir(r io.ReaderAt, size int64) (int64, error) {
	if size < endOfCentralDirFixedSize {
		return 0, xerrors.New("zipfmt: source too short for end of central directory record")
	}

	maxComment := int64(1<<16 - 1)
	lowBound := size - endOfCentralDirFixedSize - maxComment
	if lowBound < 0 {
		lowBound = 0
	}

	windowEnd := size
	overlap := make([]byte, 0, 3)
	for windowEnd > lowBound {
		windowStart := windowEnd - scanWindow
		if windowStart < lowBound {
			windowStart = lowBound
		}
		readLen := windowEnd - windowStart
		buf := make([]byte, readLen, readLen+int64(len(overlap)))
		n, err := r.ReadAt(buf, windowStart)
		if err != nil && err != io.EOF {
			return 0, xerrors.Errorf("zipfmt: scanning for end of central directory: %w", err)
		}
		// The carried bytes come right after this window in the source.
		buf = append(buf[:n], overlap...)

		if idx := bytes.LastIndex(buf, sigBytes(SigEndCentralDir)); idx >= 0 {
			return windowStart + int64(idx), nil
		}

		if len(buf) >= 3 {
			overlap = append(overlap[:0], buf[:3]...)
		} else {
			overlap = overlap[:0]
		}
		windowEnd = windowStart
	}
	return 0, xerrors.New("zipfmt: end of central directory record not found")
}

func sigBytes(s Signature) []byte {
	b := s.bytes()
	return b[:]
}

// NextSig advances r byte-at-a-time (buffering internally) until any
// recognized signature is seen, realigning the candidate window on
// every 'P' byte observed. It returns the signature found and
// consumes exactly through its 4 bytes.
func NextSig(r io.Reader) (Signature, error) {
	var window [4]byte
	filled := 0
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, one); err != nil {
			return 0, err
		}
		b := one[0]
		if b == 'P' {
			window[0] = b
			filled = 1
			continue
		}
		if filled == 0 {
			continue
		}
		window[filled] = b
		filled++
		if filled == 4 {
			if sig, ok := matchSignature(window[:]); ok {
				return sig, nil
			}
			// Realign: maybe byte 1 of this window, or this byte
			// itself, starts a fresh 'P'-led candidate.
			if window[1] == 'P' {
				window[0] = window[1]
				window[1] = window[2]
				window[2] = window[3]
				filled = 3
			} else if window[2] == 'P' {
				window[0] = window[2]
				window[1] = window[3]
				filled = 2
			} else if window[3] == 'P' {
				window[0] = window[3]
				filled = 1
			} else {
				filled = 0
			}
		}
	}
}
