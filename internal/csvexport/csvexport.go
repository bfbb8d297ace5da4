// Package csvexport writes plant records to uniquely named CSV files that the
// external layout tool consumes.
package csvexport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"plantgrid/pkg/plant"
)

// FilePrefix starts every generated file name.
const FilePrefix = "selected-plants-"

var fileSeq atomic.Uint64

// Writer serializes records into Dir. The zero Writer writes to os.TempDir().
// Files are never removed by the Writer.
type Writer struct {
	Dir string

	now func() time.Time
}

// NewWriter returns a Writer rooted at dir (os.TempDir() when empty).
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Write encodes records and stores them in a new file, returning its path.
// An empty record list yields an empty file.
func (w *Writer) Write(records []plant.Record) (string, error) {
	path := w.nextPath()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create plant csv: %w", err)
	}
	if _, err := f.Write(Encode(records)); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write plant csv %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close plant csv %s: %w", path, err)
	}
	return path, nil
}

// nextPath combines a millisecond timestamp, a process-wide sequence number
// and a random fragment so concurrent calls never share a name.
func (w *Writer) nextPath() string {
	dir := w.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	now := time.Now
	if w.now != nil {
		now = w.now
	}
	token := strings.SplitN(uuid.NewString(), "-", 2)[0]
	name := fmt.Sprintf("%s%d-%d-%s.csv", FilePrefix, now().UnixMilli(), fileSeq.Add(1), token)
	return filepath.Join(dir, name)
}

// Encode renders records as CSV text. Columns come from the first record in
// its key order; later records are projected onto those columns, so missing
// keys become empty cells and extra keys are dropped. Lines are joined with
// "\n" and the output has no trailing newline.
func Encode(records []plant.Record) []byte {
	if len(records) == 0 {
		return nil
	}
	headers := records[0].Keys()
	var buf bytes.Buffer
	for i, h := range headers {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(Escape(h))
	}
	for _, rec := range records {
		buf.WriteByte('\n')
		for i, h := range headers {
			if i > 0 {
				buf.WriteByte(',')
			}
			v, _ := rec.Get(h)
			buf.WriteString(Escape(v.Text()))
		}
	}
	return buf.Bytes()
}

// Escape quotes a cell containing a double quote, comma or line feed and
// doubles embedded quotes. Everything else passes through unchanged.
func Escape(s string) string {
	if !strings.ContainsAny(s, "\",\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
