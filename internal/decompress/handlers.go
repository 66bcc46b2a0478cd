package decompress

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	rlerrors "github.com/roverlog/roverlog/internal/errors"
)

// maxSizeHint caps how much a caller-declared size hint may preallocate.
// Hints come from untrusted stream headers; anything above the cap gets no
// preallocation and the buffer grows as real bytes arrive.
const maxSizeHint = 1 << 30

func clampHint(hint uint64) int {
	if hint > maxSizeHint {
		return 0
	}
	return int(hint)
}

// snappyHandler implements the "snappy" scheme using block format.
type snappyHandler struct{}

func (snappyHandler) Name() string { return "snappy" }

func (snappyHandler) Decompress(src []byte, sizeHint uint64) ([]byte, error) {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, rlerrors.NewDecompressError(rlerrors.CodeDecompressFailed,
			"snappy decode failed", err)
	}
	return out, nil
}

func (snappyHandler) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

// lz4Handler implements the "lz4" scheme using the LZ4 frame format.
type lz4Handler struct{}

func (lz4Handler) Name() string { return "lz4" }

func (lz4Handler) Decompress(src []byte, sizeHint uint64) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, clampHint(sizeHint)))
	zr := lz4.NewReader(bytes.NewReader(src))
	if _, err := io.Copy(buf, zr); err != nil {
		return nil, rlerrors.NewDecompressError(rlerrors.CodeDecompressFailed,
			"lz4 decode failed", err)
	}
	return buf.Bytes(), nil
}

func (lz4Handler) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, rlerrors.NewDecompressError(rlerrors.CodeDecompressFailed,
			"lz4 encode failed", err)
	}
	if err := zw.Close(); err != nil {
		return nil, rlerrors.NewDecompressError(rlerrors.CodeDecompressFailed,
			"lz4 encode failed", err)
	}
	return buf.Bytes(), nil
}

// zstdHandler implements the "zstd" scheme using frame format.
type zstdHandler struct{}

func (zstdHandler) Name() string { return "zstd" }

func (zstdHandler) Decompress(src []byte, sizeHint uint64) ([]byte, error) {
	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, rlerrors.NewDecompressError(rlerrors.CodeDecompressFailed,
			"zstd reader init failed", err)
	}
	defer zr.Close()
	out, err := zr.DecodeAll(src, make([]byte, 0, clampHint(sizeHint)))
	if err != nil {
		return nil, rlerrors.NewDecompressError(rlerrors.CodeDecompressFailed,
			"zstd decode failed", err)
	}
	return out, nil
}

func (zstdHandler) Compress(src []byte) ([]byte, error) {
	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, rlerrors.NewDecompressError(rlerrors.CodeDecompressFailed,
			"zstd writer init failed", err)
	}
	defer zw.Close()
	return zw.EncodeAll(src, nil), nil
}
