package imagestore

// Storage is where a Block's bytes currently live.
type Storage int

const (
	StorageNone Storage = iota
	StorageMemory
	StorageDisk
	StorageUniformBlock
	StorageUniformVariant
)

// Compression names the codec, if any, a Block's bytes are stored
// under. CCITT/LZW/B32 name the purge-time compression tiers chosen
// by bpp; their concrete encoder is klauspost/compress's flate (see
// compress.go) rather than the real fax/LZW bit-level codecs — only
// tier selection and size-cap/fallback behavior are modeled here.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionCCITT
	CompressionLZW
	CompressionFlate
	CompressionB32
	CompressionCopy
	CompressionTooBig
	CompressionFailed
)

// BlockFlag bits track a Block's lifecycle.
type BlockFlag uint32

const (
	WriteComplete BlockFlag = 1 << iota
	IsLoading
	NoLongerNeeded
	CheckedForUniform
	IsUniform
)

// maxCompressionRatio caps how large a "successful" compressed block
// may be relative to its uncompressed size (tbytes * maxCompressionRatio)
// before it's treated as TooBig and spilled instead.
const maxCompressionRatio = 4
