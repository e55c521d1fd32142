package imagestore

import (
	"bytes"

	"github.com/klauspost/compress/flate"
)

// compressBlock deflates buf at a fixed compression level. It backs
// every purge-time compression tier (CCITT/LZW/B32) — the tier
// distinction is only which size-cap and bpp-selection logic wraps
// this call (see tryCompress in purge.go), not a different codec.
func compressBlock(buf []byte) ([]byte, error) {
	var out bytes.Buffer
	fw, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(buf); err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
