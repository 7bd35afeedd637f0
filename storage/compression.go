package storage

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
)

// Page compression. A compressed page carries a 16-byte header followed by
// the snappy body; pages that would not shrink are stored raw. The on-disk
// slot stays one full page either way, so random access is unaffected.
const (
	compressionMagic      = 0x534e4150 // "SNAP"
	compressionHeaderSize = 16

	compOffsetMagic          = 0
	compOffsetOriginalSize   = 4
	compOffsetCompressedSize = 8
	compOffsetChecksum       = 12
)

// CompressPage compresses src into dst (which must be at least as large as
// src). Returns the total stored length and true on benefit, or 0 and
// false when the compressed form would not fit under the original size.
func CompressPage(src, dst []byte) (int, bool) {
	if len(dst) < compressionHeaderSize {
		return 0, false
	}
	maxBody := len(src) - compressionHeaderSize
	if maxBody <= 0 {
		return 0, false
	}
	// Encode needs MaxEncodedLen of scratch even when the result shrinks.
	scratch := make([]byte, snappy.MaxEncodedLen(len(src)))
	body := snappy.Encode(scratch, src)
	if len(body) >= maxBody {
		// No benefit; caller stores the raw page.
		return 0, false
	}
	writeCompressionHeader(dst, src, len(body))
	copy(dst[compressionHeaderSize:], body)
	return compressionHeaderSize + len(body), true
}

func writeCompressionHeader(dst, src []byte, bodyLen int) {
	binary.LittleEndian.PutUint32(dst[compOffsetMagic:], compressionMagic)
	binary.LittleEndian.PutUint32(dst[compOffsetOriginalSize:], uint32(len(src)))
	binary.LittleEndian.PutUint32(dst[compOffsetCompressedSize:], uint32(bodyLen))
	binary.LittleEndian.PutUint32(dst[compOffsetChecksum:], uint32(xxhash.Sum64(src)))
}

// IsCompressedPage reports whether data starts with a valid compression
// header.
func IsCompressedPage(data []byte) bool {
	if len(data) < compressionHeaderSize {
		return false
	}
	return binary.LittleEndian.Uint32(data[compOffsetMagic:]) == compressionMagic
}

// DecompressPage expands a compressed page into dst. Returns false on any
// header, size or checksum mismatch.
func DecompressPage(src, dst []byte) bool {
	if !IsCompressedPage(src) {
		return false
	}
	origSize := int(binary.LittleEndian.Uint32(src[compOffsetOriginalSize:]))
	bodyLen := int(binary.LittleEndian.Uint32(src[compOffsetCompressedSize:]))
	wantSum := binary.LittleEndian.Uint32(src[compOffsetChecksum:])
	if origSize > len(dst) || compressionHeaderSize+bodyLen > len(src) {
		return false
	}
	out, err := snappy.Decode(dst[:origSize], src[compressionHeaderSize:compressionHeaderSize+bodyLen])
	if err != nil || len(out) != origSize {
		return false
	}
	return uint32(xxhash.Sum64(dst[:origSize])) == wantSum
}
