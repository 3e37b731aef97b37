package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/alesut/pixel-agents/internal/session"
)

const readChunkSize = 64 << 10

// PollResult summarizes one tail pass over a session file.
type PollResult struct {
	Bytes     int64 // bytes read from the file
	Lines     int   // complete non-blank lines processed
	Malformed int   // lines that were not JSON objects
	Truncated bool  // the file shrank and was replayed from the start
}

// Poll reads whatever was appended to the session's file since the last
// call and feeds each complete line through the record processor. A missing
// file is not an error. A file smaller than the stored offset is treated as
// rewritten: the state is reset and the file is read again from byte 0.
func Poll(s *session.SessionState, emit session.Emitter) (PollResult, error) {
	var res PollResult

	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}
		return res, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", s.Path, err)
	}
	size := info.Size()

	if size < s.Offset {
		s.Reset(emit)
		res.Truncated = true
	}
	if size == s.Offset {
		return res, nil
	}

	err = readDelta(f, s, size, emit, &res)
	return res, err
}

// Hydrate replays the whole file into s without emitting events. It is used
// once, when a session is first registered.
func Hydrate(s *session.SessionState) (PollResult, error) {
	s.Offset = 0
	s.Partial = nil
	return Poll(s, nil)
}

// readDelta consumes [s.Offset, size) in chunks. Offset advances with every
// chunk so a failed read leaves the state consistent with what was fed.
func readDelta(f *os.File, s *session.SessionState, size int64, emit session.Emitter, res *PollResult) error {
	r := io.NewSectionReader(f, s.Offset, size-s.Offset)
	buf := make([]byte, min(readChunkSize, size-s.Offset))

	for {
		n, err := r.Read(buf)
		if n > 0 {
			feed(s, buf[:n], emit, res)
			s.Offset += int64(n)
			res.Bytes += int64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s at %d: %w", s.Path, s.Offset, err)
		}
	}
}

// feed splits chunk, prefixed by the carried partial line, on '\n'. Every
// complete line goes to the processor; the trailing fragment is kept.
func feed(s *session.SessionState, chunk []byte, emit session.Emitter, res *PollResult) {
	data := chunk
	if len(s.Partial) > 0 {
		data = append(s.Partial, chunk...)
	}

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(data[:i], []byte{'\r'})
		data = data[i+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		res.Lines++
		if processLine(s, line, emit) {
			res.Malformed++
		}
	}

	if len(data) == 0 {
		s.Partial = nil
	} else {
		s.Partial = bytes.Clone(data)
	}
}
