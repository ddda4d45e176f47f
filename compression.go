package zipstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// compressor returns the ZIP method and compressor for the named algorithm.
// A nil compressor means the method is handled by the zip package itself.
func compressor(algo string, level int) (uint16, zip.Compressor, error) {
	switch algo {
	case "", "deflate":
		if level == 0 {
			level = flate.DefaultCompression
		}
		if level < flate.HuffmanOnly || level > flate.BestCompression {
			return 0, nil, fmt.Errorf("invalid deflate compression level %d", level)
		}
		return zip.Deflate, func(dst io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(dst, level)
		}, nil
	case "store":
		return zip.Store, nil, nil
	default:
		return 0, nil, errors.New("unsupported compression algorithm")
	}
}
