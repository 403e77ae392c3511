package zel

import "github.com/pierrec/lz4/v4"

// blockDecompress inflates one LZ4 block into dst and returns the number of
// bytes written. It is the only point touching the LZ4 dependency, so a
// future compression scheme slots in beside it.
func blockDecompress(src, dst []byte) (int, error) {
	return lz4.UncompressBlock(src, dst)
}
