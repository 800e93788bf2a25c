package trajectory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/kmcsim/kmcsim/sim"
)

// JSONLZstdWriter writes the header and then one JSON line per frame
// through a zstd encoder.
//
// Thread-safety: NOT thread-safe. One writer per run.
type JSONLZstdWriter struct {
	f   *os.File // nil when writing to a caller-owned io.Writer
	enc *zstd.Encoder
	w   *bufio.Writer
}

// NewJSONLZstdWriter wraps dst and writes the header line.
func NewJSONLZstdWriter(dst io.Writer, header Header) (*JSONLZstdWriter, error) {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	w := &JSONLZstdWriter{enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}
	if err := w.writeLine(header); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("writing trajectory header: %w", err)
	}
	return w, nil
}

// Create opens path, creating parent directories, and writes the header.
func Create(path string, header Header) (*JSONLZstdWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	w, err := NewJSONLZstdWriter(f, header)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.f = f
	return w, nil
}

// Write implements sim.TrajectoryWriter.
func (w *JSONLZstdWriter) Write(time float64, step int, snap sim.Snapshot) error {
	return w.writeLine(NewFrame(time, step, snap))
}

func (w *JSONLZstdWriter) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered frames through the encoder.
func (w *JSONLZstdWriter) Flush() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

// Close flushes, ends the zstd stream and closes the file if Create opened it.
func (w *JSONLZstdWriter) Close() error {
	var err1 error
	if w.w != nil {
		err1 = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		if err := w.enc.Close(); err1 == nil {
			err1 = err
		}
		w.enc = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err1 == nil {
			err1 = err
		}
		w.f = nil
	}
	return err1
}

// Read decodes a trajectory written by JSONLZstdWriter.
func Read(r io.Reader) (Header, []Frame, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Header{}, nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	var header Header
	var frames []Frame
	line := 0
	for sc.Scan() {
		line++
		if line == 1 {
			if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
				return Header{}, nil, fmt.Errorf("line 1: header: %w", err)
			}
			continue
		}
		var f Frame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			return header, frames, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return header, frames, err
	}
	if line == 0 {
		return Header{}, nil, fmt.Errorf("empty trajectory")
	}
	return header, frames, nil
}

// ReadFile decodes the trajectory at path.
func ReadFile(path string) (Header, []Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return Read(f)
}
