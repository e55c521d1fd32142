package zipfmt

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Zip64Extra is the zip64 extra field (header id 0x0001): a 4-byte
// header (id + size) followed by whichever of uncompressed size,
// compressed size, local header offset, and disk-start-number are
// actually sentinel-flagged in the record that references it. A nil
// field is absent; Marshal writes the present ones in the fixed order
// the format requires.
type Zip64Extra struct {
	UncompressedSize  *uint64
	CompressedSize    *uint64
	LocalHeaderOffset *uint64
	DiskStartNumber   *uint32
}

func (z *Zip64Extra) Marshal() []byte {
	var body []byte
	if z.UncompressedSize != nil {
		body = appendUint64(body, *z.UncompressedSize)
	}
	if z.CompressedSize != nil {
		body = appendUint64(body, *z.CompressedSize)
	}
	if z.LocalHeaderOffset != nil {
		body = appendUint64(body, *z.LocalHeaderOffset)
	}
	if z.DiskStartNumber != nil {
		body = appendUint32(body, *z.DiskStartNumber)
	}
	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint16(buf[0:2], Zip64ExtraHeaderID)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(body)))
	copy(buf[4:], body)
	return buf
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// ParseZip64Extra scans a record's extra-field blob for the zip64
// header id and decodes whichever sentinel fields the caller reports
// as present, in the fixed order the format requires.
func ParseZip64Extra(extra []byte, needUncompressed, needCompressed, needOffset, needDisk bool) (*Zip64Extra, error) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		if len(extra) < 4+size {
			return nil, xerrors.New("zipfmt: truncated extra field")
		}
		body := extra[4 : 4+size]
		if id == Zip64ExtraHeaderID {
			z := &Zip64Extra{}
			off := 0
			if needUncompressed {
				v, n, err := takeUint64(body, off)
				if err != nil {
					return nil, err
				}
				z.UncompressedSize = &v
				off = n
			}
			if needCompressed {
				v, n, err := takeUint64(body, off)
				if err != nil {
					return nil, err
				}
				z.CompressedSize = &v
				off = n
			}
			if needOffset {
				v, n, err := takeUint64(body, off)
				if err != nil {
					return nil, err
				}
				z.LocalHeaderOffset = &v
				off = n
			}
			if needDisk {
				v, n, err := takeUint32(body, off)
				if err != nil {
					return nil, err
				}
				z.DiskStartNumber = &v
				off = n
			}
			return z, nil
		}
		extra = extra[4+size:]
	}
	return nil, xerrors.New("zipfmt: zip64 extra field not present")
}

func takeUint64(b []byte, off int) (uint64, int, error) {
	if len(b) < off+8 {
		return 0, 0, xerrors.New("zipfmt: zip64 extra field too short")
	}
	return binary.LittleEndian.Uint64(b[off : off+8]), off + 8, nil
}

func takeUint32(b []byte, off int) (uint32, int, error) {
	if len(b) < off+4 {
		return 0, 0, xerrors.New("zipfmt: zip64 extra field too short")
	}
	return binary.LittleEndian.Uint32(b[off : off+4]), off + 4, nil
}

// Zip64EndOfCentralDir is the 56-byte-fixed zip64 end-of-central-
// directory record (extensible data sector omitted: we never emit or
// expect one).
type Zip64EndOfCentralDir struct {
	VersionMadeBy   uint16
	VersionNeeded   uint16
	DiskNumber      uint32
	CDirStartDisk   uint32
	EntriesThisDisk uint64
	EntriesTotal    uint64
	CDirSize        uint64
	CDirOffset      uint64
}

const zip64EndOfCentralDirFixedSize = 56

func (e *Zip64EndOfCentralDir) Marshal() []byte {
	buf := make([]byte, zip64EndOfCentralDirFixedSize)
	sig := SigZip64EndCDir.bytes()
	copy(buf[0:4], sig[:])
	binary.LittleEndian.PutUint64(buf[4:12], uint64(zip64EndOfCentralDirFixedSize-12))
	binary.LittleEndian.PutUint16(buf[12:14], e.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[14:16], e.VersionNeeded)
	binary.LittleEndian.PutUint32(buf[16:20], e.DiskNumber)
	binary.LittleEndian.PutUint32(buf[20:24], e.CDirStartDisk)
	binary.LittleEndian.PutUint64(buf[24:32], e.EntriesThisDisk)
	binary.LittleEndian.PutUint64(buf[32:40], e.EntriesTotal)
	binary.LittleEndian.PutUint64(buf[40:48], e.CDirSize)
	binary.LittleEndian.PutUint64(buf[48:56], e.CDirOffset)
	return buf
}

func ParseZip64EndOfCentralDir(buf []byte) (*Zip64EndOfCentralDir, error) {
	if len(buf) < zip64EndOfCentralDirFixedSize {
		return nil, xerrors.New("zipfmt: short zip64 end of central directory record")
	}
	if sig, ok := matchSignature(buf); !ok || sig != SigZip64EndCDir {
		return nil, xerrors.New("zipfmt: bad zip64 end of central directory signature")
	}
	return &Zip64EndOfCentralDir{
		VersionMadeBy:   binary.LittleEndian.Uint16(buf[12:14]),
		VersionNeeded:   binary.LittleEndian.Uint16(buf[14:16]),
		DiskNumber:      binary.LittleEndian.Uint32(buf[16:20]),
		CDirStartDisk:   binary.LittleEndian.Uint32(buf[20:24]),
		EntriesThisDisk: binary.LittleEndian.Uint64(buf[24:32]),
		EntriesTotal:    binary.LittleEndian.Uint64(buf[32:40]),
		CDirSize:        binary.LittleEndian.Uint64(buf[40:48]),
		CDirOffset:      binary.LittleEndian.Uint64(buf[48:56]),
	}, nil
}

// Zip64Locator is the 20-byte zip64 end-of-central-directory locator.
type Zip64Locator struct {
	CDirStartDisk   uint32
	Zip64EndOffset  uint64
	TotalDisks      uint32
}

const zip64LocatorSize = 20

func (l *Zip64Locator) Marshal() []byte {
	buf := make([]byte, zip64LocatorSize)
	sig := SigZip64Locator.bytes()
	copy(buf[0:4], sig[:])
	binary.LittleEndian.PutUint32(buf[4:8], l.CDirStartDisk)
	binary.LittleEndian.PutUint64(buf[8:16], l.Zip64EndOffset)
	binary.LittleEndian.PutUint32(buf[16:20], l.TotalDisks)
	return buf
}

func ParseZip64Locator(buf []byte) (*Zip64Locator, error) {
	if len(buf) < zip64LocatorSize {
		return nil, xerrors.New("zipfmt: short zip64 locator")
	}
	if sig, ok := matchSignature(buf); !ok || sig != SigZip64Locator {
		return nil, xerrors.New("zipfmt: bad zip64 locator signature")
	}
	return &Zip64Locator{
		CDirStartDisk:  binary.LittleEndian.Uint32(buf[4:8]),
		Zip64EndOffset: binary.LittleEndian.Uint64(buf[8:16]),
		TotalDisks:     binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}
