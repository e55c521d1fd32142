package zipfmt

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/xerrors"
)

// LocalFileHeader is the 30-byte-fixed local file header plus its
// variable name/extra.
type LocalFileHeader struct {
	VersionNeeded    uint16
	Flags            uint16
	Method           uint16
	ModTime, ModDate uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Name             string
	Extra            []byte
}

const localFileHeaderFixedSize = 30

func (h *LocalFileHeader) Marshal() []byte {
	buf := make([]byte, localFileHeaderFixedSize+len(h.Name)+len(h.Extra))
	sig := SigLocalFile.bytes()
	copy(buf[0:4], sig[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeeded)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint16(buf[8:10], h.Method)
	binary.LittleEndian.PutUint16(buf[10:12], h.ModTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.ModDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(h.Name)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(h.Extra)))
	copy(buf[30:30+len(h.Name)], h.Name)
	copy(buf[30+len(h.Name):], h.Extra)
	return buf
}

func ParseLocalFileHeader(buf []byte) (*LocalFileHeader, int, error) {
	if len(buf) < localFileHeaderFixedSize {
		return nil, 0, xerrors.New("zipfmt: short local file header")
	}
	if sig, ok := matchSignature(buf); !ok || sig != SigLocalFile {
		return nil, 0, xerrors.New("zipfmt: bad local file header signature")
	}
	h := &LocalFileHeader{
		VersionNeeded:    binary.LittleEndian.Uint16(buf[4:6]),
		Flags:            binary.LittleEndian.Uint16(buf[6:8]),
		Method:           binary.LittleEndian.Uint16(buf[8:10]),
		ModTime:          binary.LittleEndian.Uint16(buf[10:12]),
		ModDate:          binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:            binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:   binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[22:26]),
	}
	nameLen := int(binary.LittleEndian.Uint16(buf[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(buf[28:30]))
	total := localFileHeaderFixedSize + nameLen + extraLen
	if len(buf) < total {
		return nil, 0, xerrors.New("zipfmt: short local file header name/extra")
	}
	h.Name = string(buf[30 : 30+nameLen])
	h.Extra = append([]byte(nil), buf[30+nameLen:total]...)
	return h, total, nil
}

// CentralDirHeader is the 46-byte-fixed central directory file header
// plus its variable name/extra/comment.
type CentralDirHeader struct {
	VersionMadeBy      uint16
	VersionNeeded      uint16
	Flags              uint16
	Method             uint16
	ModTime, ModDate   uint16
	CRC32              uint32
	CompressedSize     uint32
	UncompressedSize   uint32
	DiskNumberStart    uint16
	InternalAttrs      uint16
	ExternalAttrs      uint32
	LocalHeaderOffset  uint32
	Name               string
	Extra              []byte
	Comment            string
}

const centralDirHeaderFixedSize = 46

func (h *CentralDirHeader) Marshal() []byte {
	buf := make([]byte, centralDirHeaderFixedSize+len(h.Name)+len(h.Extra)+len(h.Comment))
	sig := SigCentralDir.bytes()
	copy(buf[0:4], sig[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], h.VersionNeeded)
	binary.LittleEndian.PutUint16(buf[8:10], h.Flags)
	binary.LittleEndian.PutUint16(buf[10:12], h.Method)
	binary.LittleEndian.PutUint16(buf[12:14], h.ModTime)
	binary.LittleEndian.PutUint16(buf[14:16], h.ModDate)
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(h.Name)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(h.Extra)))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(len(h.Comment)))
	binary.LittleEndian.PutUint16(buf[34:36], h.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], h.InternalAttrs)
	binary.LittleEndian.PutUint32(buf[38:42], h.ExternalAttrs)
	binary.LittleEndian.PutUint32(buf[42:46], h.LocalHeaderOffset)
	off := centralDirHeaderFixedSize
	off += copy(buf[off:], h.Name)
	off += copy(buf[off:], h.Extra)
	copy(buf[off:], h.Comment)
	return buf
}

func ParseCentralDirHeader(buf []byte) (*CentralDirHeader, int, error) {
	if len(buf) < centralDirHeaderFixedSize {
		return nil, 0, xerrors.New("zipfmt: short central directory header")
	}
	if sig, ok := matchSignature(buf); !ok || sig != SigCentralDir {
		return nil, 0, xerrors.New("zipfmt: bad central directory header signature")
	}
	h := &CentralDirHeader{
		VersionMadeBy:     binary.LittleEndian.Uint16(buf[4:6]),
		VersionNeeded:     binary.LittleEndian.Uint16(buf[6:8]),
		Flags:             binary.LittleEndian.Uint16(buf[8:10]),
		Method:            binary.LittleEndian.Uint16(buf[10:12]),
		ModTime:           binary.LittleEndian.Uint16(buf[12:14]),
		ModDate:           binary.LittleEndian.Uint16(buf[14:16]),
		CRC32:             binary.LittleEndian.Uint32(buf[16:20]),
		CompressedSize:    binary.LittleEndian.Uint32(buf[20:24]),
		UncompressedSize:  binary.LittleEndian.Uint32(buf[24:28]),
		DiskNumberStart:   binary.LittleEndian.Uint16(buf[34:36]),
		InternalAttrs:     binary.LittleEndian.Uint16(buf[36:38]),
		ExternalAttrs:     binary.LittleEndian.Uint32(buf[38:42]),
		LocalHeaderOffset: binary.LittleEndian.Uint32(buf[42:46]),
	}
	nameLen := int(binary.LittleEndian.Uint16(buf[28:30]))
	extraLen := int(binary.LittleEndian.Uint16(buf[30:32]))
	commentLen := int(binary.LittleEndian.Uint16(buf[32:34]))
	total := centralDirHeaderFixedSize + nameLen + extraLen + commentLen
	if len(buf) < total {
		return nil, 0, xerrors.New("zipfmt: short central directory header name/extra/comment")
	}
	off := centralDirHeaderFixedSize
	h.Name = string(buf[off : off+nameLen])
	off += nameLen
	h.Extra = append([]byte(nil), buf[off:off+extraLen]...)
	off += extraLen
	h.Comment = string(buf[off : off+commentLen])
	return h, total, nil
}

// DataDescriptor is the 12 (or 16 with leading signature) byte record
// following stored/deflated data when FlagDataDescriptor is set.
type DataDescriptor struct {
	HasSignature     bool
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

func (d *DataDescriptor) Marshal() []byte {
	size := 12
	if d.HasSignature {
		size = 16
	}
	buf := make([]byte, size)
	off := 0
	if d.HasSignature {
		sig := SigDataDesc.bytes()
		copy(buf[0:4], sig[:])
		off = 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], d.CRC32)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], d.UncompressedSize)
	return buf
}

func ParseDataDescriptor(buf []byte) (*DataDescriptor, int, error) {
	d := &DataDescriptor{}
	off := 0
	if len(buf) >= 4 {
		if sig, ok := matchSignature(buf); ok && sig == SigDataDesc {
			d.HasSignature = true
			off = 4
		}
	}
	if len(buf) < off+12 {
		return nil, 0, xerrors.New("zipfmt: short data descriptor")
	}
	d.CRC32 = binary.LittleEndian.Uint32(buf[off : off+4])
	d.CompressedSize = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	d.UncompressedSize = binary.LittleEndian.Uint32(buf[off+8 : off+12])
	return d, off + 12, nil
}

// EndOfCentralDir is the 22-byte-fixed end-of-central-directory record
// plus its variable comment.
type EndOfCentralDir struct {
	DiskNumber           uint16
	CDirStartDisk        uint16
	EntriesThisDisk      uint16
	EntriesTotal         uint16
	CDirSize             uint32
	CDirOffset           uint32
	Comment              string
}

const endOfCentralDirFixedSize = 22

func (e *EndOfCentralDir) Marshal() []byte {
	buf := make([]byte, endOfCentralDirFixedSize+len(e.Comment))
	sig := SigEndCentralDir.bytes()
	copy(buf[0:4], sig[:])
	binary.LittleEndian.PutUint16(buf[4:6], e.DiskNumber)
	binary.LittleEndian.PutUint16(buf[6:8], e.CDirStartDisk)
	binary.LittleEndian.PutUint16(buf[8:10], e.EntriesThisDisk)
	binary.LittleEndian.PutUint16(buf[10:12], e.EntriesTotal)
	binary.LittleEndian.PutUint32(buf[12:16], e.CDirSize)
	binary.LittleEndian.PutUint32(buf[16:20], e.CDirOffset)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(e.Comment)))
	copy(buf[22:], e.Comment)
	return buf
}

func ParseEndOfCentralDir(buf []byte) (*EndOfCentralDir, error) {
	if len(buf) < endOfCentralDirFixedSize {
		return nil, xerrors.New("zipfmt: short end of central directory record")
	}
	if sig, ok := matchSignature(buf); !ok || sig != SigEndCentralDir {
		return nil, xerrors.New("zipfmt: bad end of central directory signature")
	}
	e := &EndOfCentralDir{
		DiskNumber:      binary.LittleEndian.Uint16(buf[4:6]),
		CDirStartDisk:   binary.LittleEndian.Uint16(buf[6:8]),
		EntriesThisDisk: binary.LittleEndian.Uint16(buf[8:10]),
		EntriesTotal:    binary.LittleEndian.Uint16(buf[10:12]),
		CDirSize:        binary.LittleEndian.Uint32(buf[12:16]),
		CDirOffset:      binary.LittleEndian.Uint32(buf[16:20]),
	}
	commentLen := int(binary.LittleEndian.Uint16(buf[20:22]))
	if len(buf) < endOfCentralDirFixedSize+commentLen {
		commentLen = len(buf) - endOfCentralDirFixedSize
	}
	if commentLen > 0 {
		e.Comment = string(buf[22 : 22+commentLen])
	}
	return e, nil
}

func errShort(what string, need, have int) error {
	return xerrors.Errorf("zipfmt: %s: need %d bytes, have %d: %w", what, need, have, fmt.Errorf("short read"))
}
