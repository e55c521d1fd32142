package imagestore

import "github.com/sanjeekswipro/ripstore/internal/ripfs"

// xyswap implements the XYSWAP transpose: once a block's rows are all
// written, its samples are transposed so the major/minor
// axes swap, trading read-address locality along one axis for the
// other. It allocates a fresh buffer sized to the swapped dimensions
// rather than reversing in place, since the row stride generally
// changes (e.g. 1bpp rounds the new minor dimension up to a multiple
// of 8, per xbytesFor).
//
// This drives the transpose with direct per-pixel bit addressing
// rather than precomputed bit-reversal tables; at these block sizes
// the lookup-table overhead isn't worth it.
func (b *Block) xyswap() error {
	s := b.plane.store
	newXsize, newYsize := b.Ysize, b.Xsize
	newXbytes := xbytesFor(newXsize, s.Bpp, false)
	out := make([]byte, newXbytes*newYsize)

	switch s.Bpp {
	case 1, 2, 4:
		xyswapSub8(b.Data, out, b.Xsize, b.Ysize, b.Xbytes, newXbytes, s.Bpp)
	case 8:
		xyswapBytes(b.Data, out, b.Xsize, b.Ysize, b.Xbytes, newXbytes, 1)
	case 16:
		xyswapBytes(b.Data, out, b.Xsize, b.Ysize, b.Xbytes, newXbytes, 2)
	case 32:
		xyswapBytes(b.Data, out, b.Xsize, b.Ysize, b.Xbytes, newXbytes, 4)
	default:
		return ripfs.E(ripfs.Unsupported, "xyswap", nil)
	}

	b.Data = out
	b.Xsize, b.Ysize = newXsize, newYsize
	b.Xbytes = newXbytes
	b.Ybytes = newXbytes
	b.Rbytes = newXbytes * newYsize
	return nil
}

// xyswapSub8 transposes sub-byte-packed samples (1/2/4 bpp): pixel
// (x,y) in the source becomes pixel (y,x) in the destination.
func xyswapSub8(src, dst []byte, xsize, ysize, srcStride, dstStride, bpp int) {
	for y := 0; y < ysize; y++ {
		for x := 0; x < xsize; x++ {
			v := getSample(src, y*srcStride, x, bpp)
			setSample(dst, x*dstStride, y, bpp, v)
		}
	}
}

func getSample(row []byte, base, x, bpp int) byte {
	bitpos := x * bpp
	byteIdx := base + bitpos/8
	if byteIdx >= len(row) {
		return 0
	}
	shift := 8 - bpp - (bitpos % 8)
	mask := byte(1<<uint(bpp) - 1)
	return (row[byteIdx] >> uint(shift)) & mask
}

func setSample(row []byte, base, x, bpp int, v byte) {
	bitpos := x * bpp
	byteIdx := base + bitpos/8
	if byteIdx >= len(row) {
		return
	}
	shift := 8 - bpp - (bitpos % 8)
	mask := byte(1<<uint(bpp)-1) << uint(shift)
	row[byteIdx] = row[byteIdx]&^mask | (v<<uint(shift))&mask
}

// xyswapBytes transposes byte-granular samples (8/16/32 bpp, sampleBytes
// bytes per pixel): pixel (x,y) in the source becomes pixel (y,x) in
// the destination.
func xyswapBytes(src, dst []byte, xsize, ysize, srcStride, dstStride, sampleBytes int) {
	for y := 0; y < ysize; y++ {
		srcRow := y * srcStride
		for x := 0; x < xsize; x++ {
			srcOff := srcRow + x*sampleBytes
			dstOff := x*dstStride + y*sampleBytes
			if srcOff+sampleBytes > len(src) || dstOff+sampleBytes > len(dst) {
				continue
			}
			copy(dst[dstOff:dstOff+sampleBytes], src[srcOff:srcOff+sampleBytes])
		}
	}
}
