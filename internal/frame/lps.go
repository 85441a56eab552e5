package frame

import (
	"encoding/binary"
	"fmt"
)

// PackList concatenates the elements as (u32 length, bytes) tuples. An
// empty list packs to zero bytes.
func PackList(elems [][]byte) []byte {
	size := 0
	for _, e := range elems {
		size += 4 + len(e)
	}
	if size == 0 {
		return nil
	}
	buf := make([]byte, 0, size)
	var lenb [4]byte
	for _, e := range elems {
		binary.LittleEndian.PutUint32(lenb[:], uint32(len(e)))
		buf = append(buf, lenb[:]...)
		buf = append(buf, e...)
	}
	return buf
}

// UnpackList splits buf into the elements packed by PackList. A length
// prefix that overruns the remaining bytes is ErrTruncatedLPS.
func UnpackList(buf []byte) ([][]byte, error) {
	var elems [][]byte
	offset := 0
	for offset < len(buf) {
		if offset+4 > len(buf) {
			return nil, fmt.Errorf("%w: %d bytes left for length prefix at offset %d",
				ErrTruncatedLPS, len(buf)-offset, offset)
		}
		n := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
		offset += 4
		if offset+n > len(buf) {
			return nil, fmt.Errorf("%w: element of %d bytes at offset %d exceeds %d available",
				ErrTruncatedLPS, n, offset, len(buf)-offset)
		}
		elem := make([]byte, n)
		copy(elem, buf[offset:offset+n])
		elems = append(elems, elem)
		offset += n
	}
	return elems, nil
}
