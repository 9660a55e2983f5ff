package stancsv

import (
	"bufio"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	gqerrors "github.com/gqflow/gqflow/pkg/errors"
)

// Writer emits the sample-file convention: comment header, column row,
// numeric rows. Output written by Writer re-ingests through Parse with
// identical values.
type Writer struct {
	w   *bufio.Writer
	buf []byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:   bufio.NewWriterSize(w, 64*1024),
		buf: make([]byte, 0, 256),
	}
}

// WriteComment writes a single '#'-prefixed comment line.
func (w *Writer) WriteComment(text string) error {
	if _, err := w.w.WriteString("# "); err != nil {
		return err
	}
	if _, err := w.w.WriteString(text); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// WriteConfig writes key = value comment lines in sorted key order so
// output is deterministic.
func (w *Writer) WriteConfig(config map[string]string) error {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteComment(k + " = " + config[k]); err != nil {
			return err
		}
	}
	return nil
}

// WriteColumns writes the column-name row.
func (w *Writer) WriteColumns(columns []string) error {
	for i, col := range columns {
		if i > 0 {
			if err := w.w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.w.WriteString(col); err != nil {
			return err
		}
	}
	return w.w.WriteByte('\n')
}

// WriteRow writes one numeric row. NaN values are written as "nan", which
// ParseRow round-trips.
func (w *Writer) WriteRow(values []float64) error {
	w.buf = w.buf[:0]
	for i, v := range values {
		if i > 0 {
			w.buf = append(w.buf, ',')
		}
		if math.IsNaN(v) {
			w.buf = append(w.buf, "nan"...)
		} else {
			w.buf = strconv.AppendFloat(w.buf, v, 'g', -1, 64)
		}
	}
	w.buf = append(w.buf, '\n')
	_, err := w.w.Write(w.buf)
	return err
}

// Flush flushes buffered output.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// WriteFile writes a complete sample to path.
func WriteFile(path string, s *Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to create output file").
			WithContext("path", path)
	}
	defer f.Close()

	w := NewWriter(f)
	if err := w.WriteConfig(s.Config); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to write header")
	}
	if err := w.WriteColumns(s.Columns); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to write columns")
	}
	for _, row := range s.Values {
		if err := w.WriteRow(row); err != nil {
			return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to write row")
		}
	}
	if err := w.Flush(); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to flush output")
	}
	return f.Sync()
}
