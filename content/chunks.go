package content

import (
	"io"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// DefaultChunkSize matches oras-py's defaults.default_chunksize: 16MiB.
const DefaultChunkSize = 16 * 1024 * 1024

// Chunk is a single slice of data read by ReadInChunks, paired with
// its zero-based offset so callers can build a Content-Range header.
type Chunk struct {
	Data   []byte
	Offset int64
}

// ReadInChunks invokes fn once per chunkSize-sized (or smaller final)
// read from r, stopping at the first error fn returns or at EOF.
func ReadInChunks(r io.Reader, chunkSize int64, fn func(Chunk) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	var offset int64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if cbErr := fn(Chunk{Data: buf[:n], Offset: offset}); cbErr != nil {
				return cbErr
			}
			offset += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return orerrors.Wrap(err, orerrors.ProtocolError, "ReadInChunks", "failed reading chunk at offset %d", offset)
		}
	}
}
