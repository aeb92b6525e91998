package gateway

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
)

// zlib-stream frames end with a Z_SYNC_FLUSH marker.
var zlibSuffix = []byte{0x00, 0x00, 0xff, 0xff}

// inflater decompresses a zlib-stream shared across all frames of one
// gateway connection. It must be reset before the first frame of a new
// connection.
type inflater struct {
	in bytes.Buffer
	zr io.ReadCloser
}

// decompress inflates one frame. Frames without the sync-flush suffix
// (including frames shorter than 4 bytes) pass through unchanged.
func (z *inflater) decompress(frame []byte) ([]byte, error) {
	if len(frame) < 4 || !bytes.HasSuffix(frame, zlibSuffix) {
		return frame, nil
	}
	z.in.Write(frame)
	if z.zr == nil {
		zr, err := zlib.NewReader(&z.in)
		if err != nil {
			return nil, err
		}
		z.zr = zr
	}
	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := z.zr.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			// The sync-flush block ends exactly at the frame
			// boundary, so the reader runs out of input here. The
			// reader may still hold buffered output after the input
			// is drained, so this is the only loop exit.
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// reset discards the shared stream state.
func (z *inflater) reset() {
	z.in.Reset()
	z.zr = nil
}
