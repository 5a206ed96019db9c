package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// DefaultMaxFrame bounds a single newline-delimited frame.
const DefaultMaxFrame = 64 * 1024

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// FrameReader splits a byte stream into newline-delimited frames, so that
// coalesced or split writes on the transport do not change message
// boundaries.
type FrameReader struct {
	r   *bufio.Reader
	max int
}

func NewFrameReader(r io.Reader, max int) *FrameReader {
	if max <= 0 {
		max = DefaultMaxFrame
	}
	return &FrameReader{r: bufio.NewReaderSize(r, 4096), max: max}
}

// ReadFrame returns the next non-empty frame without its delimiter. A final
// frame that is not newline-terminated is returned before io.EOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := fr.r.ReadSlice('\n')
		if len(buf)+len(chunk) > fr.max+1 {
			return nil, ErrFrameTooLarge
		}
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			line := bytes.TrimSpace(buf)
			if len(line) == 0 {
				buf = buf[:0]
				continue
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			line := bytes.TrimSpace(buf)
			if len(line) > 0 {
				return line, nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

// AppendFrame appends the encoded message and its delimiter to dst.
func AppendFrame(dst []byte, m Message) ([]byte, error) {
	data, err := Marshal(m)
	if err != nil {
		return dst, err
	}
	dst = append(dst, data...)
	return append(dst, '\n'), nil
}
