package spill

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Kind selects the spill file family
type Kind string

const (
	KindSD    Kind = "sd"
	KindToken Kind = "token"
)

// timestampLayout is UTC YYYYMMDD_HHMMSS, embedded in every spill file name
const timestampLayout = "20060102_150405"

// lineTerminator ends every serialized record
var lineTerminator = []byte("\r\n")

// FileName builds the spill file name for a kind at a point in time,
// e.g. sd_20240101_120000.gzip
func FileName(kind Kind, now time.Time) string {
	return fmt.Sprintf("%s_%s.gzip", kind, now.UTC().Format(timestampLayout))
}

// Writer appends records to a gzip-compressed spill file, one JSON object
// per CRLF-terminated line. A Writer is owned by a single goroutine.
type Writer struct {
	path string
	f    *os.File
	gz   *gzip.Writer
}

// NewWriter creates a new spill file of the given kind in dir
func NewWriter(dir string, kind Kind) (*Writer, error) {
	path := filepath.Join(dir, FileName(kind, time.Now()))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}
	return &Writer{
		path: path,
		f:    f,
		gz:   gzip.NewWriter(f),
	}, nil
}

// Path returns the spill file path
func (w *Writer) Path() string {
	return w.path
}

// Write serializes one record and appends it to the file
func (w *Writer) Write(rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize spill record: %w", err)
	}
	if _, err := w.gz.Write(append(data, lineTerminator...)); err != nil {
		return fmt.Errorf("failed to write spill record: %w", err)
	}
	return nil
}

// Close flushes the gzip stream and closes the file
func (w *Writer) Close() error {
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to close spill stream: %w", err)
	}
	return w.f.Close()
}

// Reader streams records back out of a spill file
type Reader struct {
	f  *os.File
	gz *gzip.Reader
	sc *bufio.Scanner
}

// OpenReader opens a spill file for sequential reading
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spill file: %w", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open spill stream: %w", err)
	}
	sc := bufio.NewScanner(gz)
	// security descriptor lines routinely exceed the default token size
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	return &Reader{f: f, gz: gz, sc: sc}, nil
}

// Next reads the next record into dst. It returns false when the stream is
// exhausted; Err reports any scan error afterwards.
func (r *Reader) Next(dst any) (bool, error) {
	for r.sc.Scan() {
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, dst); err != nil {
			return false, fmt.Errorf("failed to parse spill record: %w", err)
		}
		return true, nil
	}
	if err := r.sc.Err(); err != nil {
		return false, fmt.Errorf("failed to read spill file: %w", err)
	}
	return false, nil
}

// Close closes the underlying stream and file
func (r *Reader) Close() error {
	if err := r.gz.Close(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
