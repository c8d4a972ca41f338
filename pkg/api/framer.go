package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/psantana5/ytconvert/pkg/models"
)

// DefaultChunkSize is the relay buffer size. One buffer per request.
const DefaultChunkSize = 32 * 1024

// StreamPhase tells where a relay stopped
type StreamPhase string

const (
	// PhasePreBody: the source failed before producing a byte; nothing was written
	PhasePreBody StreamPhase = "pre_body"
	// PhaseMidStream: the source failed after headers and some body were sent
	PhaseMidStream StreamPhase = "mid_stream"
	// PhaseClientWrite: writing to the client failed, usually a disconnect
	PhaseClientWrite StreamPhase = "client_write"
)

// StreamError is returned by Framer.Stream for any failed relay
type StreamError struct {
	Phase StreamPhase
	Bytes int64
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed (%s after %d bytes): %v", e.Phase, e.Bytes, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsPhase reports whether err is a StreamError from the given phase
func IsPhase(err error, phase StreamPhase) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Phase == phase
}

// Framer turns a byte source into an attachment response. Headers are
// committed only once the first chunk is in hand.
type Framer struct {
	ChunkSize int
}

// Stream relays src to w, flushing after every chunk. It returns the
// number of body bytes written.
func (f *Framer) Stream(w http.ResponseWriter, src io.Reader, kind models.OutputKind, fileName string) (int64, error) {
	size := f.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)

	// hold the headers until the source proves it can produce output
	n, err := readSome(src, buf)
	if n == 0 && err != nil && !errors.Is(err, io.EOF) {
		return 0, &StreamError{Phase: PhasePreBody, Err: err}
	}

	h := w.Header()
	h.Set("Content-Type", kind.ContentType())
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	var written int64

	for {
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, &StreamError{Phase: PhaseClientWrite, Bytes: written, Err: werr}
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return written, &StreamError{Phase: PhaseClientWrite, Bytes: written, Err: ferr}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return written, nil
			}
			return written, &StreamError{Phase: PhaseMidStream, Bytes: written, Err: err}
		}
		n, err = src.Read(buf)
	}
}

// readSome reads until at least one byte or an error
func readSome(src io.Reader, buf []byte) (int, error) {
	for {
		n, err := src.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
