package wire

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// maxChunkLineBytes bounds one chunk-size line including extensions.
const maxChunkLineBytes = 4 << 10

// ChunkedReader converts a chunked message body into a byte stream. It
// reads from the connection's shared buffered reader and consumes
// exactly the body's bytes, leaving anything after the trailer section
// untouched for the next exchange.
type ChunkedReader struct {
	br *bufio.Reader

	remaining uint64 // unread data bytes of the current chunk
	inChunk   bool
	done      bool

	// trailerStore points at external trailer storage, filled on the
	// last Read. May be nil.
	trailerStore *[]Field
}

var _ io.Reader = (*ChunkedReader)(nil)

func NewChunkedReader(br *bufio.Reader, trailerStore *[]Field) *ChunkedReader {
	return &ChunkedReader{br: br, trailerStore: trailerStore}
}

func (cr *ChunkedReader) Read(p []byte) (int, error) {
	if cr.done {
		return 0, io.EOF
	}

	if !cr.inChunk {
		size, err := cr.decodeChunkHeader()
		if err != nil {
			return 0, errors.Wrap(err, "decoding chunk header")
		}

		if size == 0 {
			// Last chunk.
			if err := cr.decodeTrailers(); err != nil {
				return 0, errors.Wrap(err, "decoding trailers")
			}
			cr.done = true
			return 0, io.EOF
		}

		cr.remaining = size
		cr.inChunk = true
	}

	if uint64(len(p)) > cr.remaining {
		p = p[:cr.remaining]
	}

	n, err := cr.br.Read(p)
	cr.remaining -= uint64(n)

	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, errors.Wrap(err, "reading chunk data")
	}

	if cr.remaining == 0 {
		if err := cr.consumeCRLF(); err != nil {
			return n, errors.Wrap(err, "reading chunk delimiter")
		}
		cr.inChunk = false
	}

	return n, nil
}

func (cr *ChunkedReader) decodeChunkHeader() (uint64, error) {
	line, err := readCRLFLine(cr.br, maxChunkLineBytes)
	if err != nil {
		return 0, err
	}

	// Chunk extensions are tolerated and dropped.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1.1
	sizeRaw, _, _ := strings.Cut(line, ";")
	sizeRaw = strings.TrimSpace(sizeRaw)

	size, err := strconv.ParseUint(sizeRaw, 16, 64)
	if err != nil {
		return 0, errors.Errorf("failed to decode hex chunk size: %q", sizeRaw)
	}

	return size, nil
}

func (cr *ChunkedReader) consumeCRLF() error {
	var dump [2]byte
	if _, err := io.ReadFull(cr.br, dump[:]); err != nil {
		return err
	}
	if !bytes.Equal(dump[:], crlf) {
		return errors.New("CRLF delimiter not found")
	}
	return nil
}

func (cr *ChunkedReader) decodeTrailers() error {
	fields := make([]Field, 0)
	for {
		line, err := readCRLFLine(cr.br, maxChunkLineBytes)
		if err != nil {
			return errors.Wrap(err, "reading line")
		}

		if len(line) == 0 {
			// End of trailer section.
			break
		}

		field, err := ParseField(line)
		if err != nil {
			return errors.Wrap(err, "parsing field")
		}

		fields = append(fields, field)
	}

	if cr.trailerStore != nil {
		*cr.trailerStore = fields
	}

	return nil
}

// ChunkedWriter frames written bytes as chunks. Close emits the last
// chunk and the trailer section.
type ChunkedWriter struct {
	w io.Writer

	// trailerStore points at external trailer storage, emitted on
	// Close. May be nil.
	trailerStore *[]Field
}

var _ io.WriteCloser = (*ChunkedWriter)(nil)

func NewChunkedWriter(w io.Writer, trailerStore *[]Field) *ChunkedWriter {
	return &ChunkedWriter{w: w, trailerStore: trailerStore}
}

func (cw *ChunkedWriter) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		// A zero length chunk would mean EOF.
		return 0, nil
	}

	header := strconv.FormatUint(uint64(len(p)), 16)
	if _, err := io.WriteString(cw.w, header+"\r\n"); err != nil {
		return 0, errors.Wrap(err, "writing chunk header")
	}

	n, err = cw.w.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "writing chunk data")
	}

	if _, err := cw.w.Write(crlf); err != nil {
		return n, errors.Wrap(err, "writing chunk delimiter")
	}

	return n, nil
}

func (cw *ChunkedWriter) Close() error {
	if _, err := io.WriteString(cw.w, "0\r\n"); err != nil {
		return errors.Wrap(err, "writing last chunk")
	}

	if cw.trailerStore != nil {
		for _, field := range *cw.trailerStore {
			if _, err := io.WriteString(cw.w, field.text()+"\r\n"); err != nil {
				return errors.Wrap(err, "writing trailer")
			}
		}
	}

	if _, err := cw.w.Write(crlf); err != nil {
		return errors.Wrap(err, "terminating trailer section")
	}

	return nil
}
