// Package stancsv reads and writes the structured sample-file convention
// used by Stan-style programs: a block of '#'-prefixed comment lines
// carrying key = value configuration, one comma-separated column-name row,
// then one numeric row per draw. Comment blocks may also appear between or
// after the draw rows (adaptation and timing notes) and are skipped.
package stancsv

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gqflow/gqflow/internal/pool"
	gqerrors "github.com/gqflow/gqflow/pkg/errors"
)

// Sample is the in-memory form of one sample file.
type Sample struct {
	// Config holds the non-default key = value entries from the comment
	// header. Entries suffixed "(Default)" are dropped, matching the
	// sampler's own convention for marking unchanged settings.
	Config map[string]string

	// Columns are the flattened column names from the header row.
	Columns []string

	// Values holds one parsed row per draw.
	Values [][]float64
}

// ReadFile reads and parses a sample file.
func ReadFile(path string) (*Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gqerrors.Wrap(err, gqerrors.CodeMalformedInput, "failed to read sample file").
			WithContext("path", path)
	}
	s, err := Parse(data)
	if err != nil {
		if e, ok := err.(*gqerrors.Error); ok {
			e.WithContext("path", path)
		}
		return nil, err
	}
	return s, nil
}

// Read parses a sample from a reader.
func Read(r io.Reader) (*Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, gqerrors.Wrap(err, gqerrors.CodeMalformedInput, "failed to read sample")
	}
	return Parse(data)
}

// Parse parses an in-memory sample file.
func Parse(data []byte) (*Sample, error) {
	s := &Sample{Config: make(map[string]string)}
	lb := pool.NewLineBuffer(data)
	lineNum := 0

	// Comment header: config lines until the column-name row.
	var header []byte
	for {
		line := lb.NextLine()
		if line == nil {
			return nil, gqerrors.New(gqerrors.CodeEmptyInput, "sample file has no column header")
		}
		lineNum++
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if line[0] == '#' {
			scanConfigLine(line, s.Config)
			continue
		}
		header = line
		break
	}

	for _, col := range bytes.Split(header, []byte{','}) {
		name := string(bytes.TrimSpace(col))
		if name == "" {
			return nil, gqerrors.New(gqerrors.CodeMalformedInput, "empty column name in header").
				WithContext("line", lineNum)
		}
		s.Columns = append(s.Columns, name)
	}

	// Draw rows, with embedded comment blocks skipped.
	for lb.HasMore() {
		line := lb.NextLine()
		if line == nil {
			break
		}
		lineNum++
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		row, err := ParseRow(line, len(s.Columns), lineNum)
		if err != nil {
			return nil, err
		}
		s.Values = append(s.Values, row)
	}

	if len(s.Values) == 0 {
		return nil, gqerrors.New(gqerrors.CodeEmptyInput, "sample file contains no draws")
	}
	return s, nil
}

// ParseRow parses one comma-separated numeric row. The row must contain
// exactly want fields.
func ParseRow(line []byte, want int, lineNum int) ([]float64, error) {
	row := make([]float64, 0, want)
	start := 0
	for i := 0; i <= len(line); i++ {
		if i < len(line) && line[i] != ',' {
			continue
		}
		field := strings.TrimSpace(string(line[start:i]))
		start = i + 1
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, gqerrors.NonNumeric("", lineNum, field)
		}
		row = append(row, v)
	}
	if len(row) != want {
		return nil, gqerrors.New(gqerrors.CodeColumnMismatch, "bad draw row").
			WithContext("line", lineNum).
			WithContext("expected", want).
			WithContext("found", len(row))
	}
	return row, nil
}

// scanConfigLine extracts a key = value entry from a comment line.
// Lines without '=', and entries left at their defaults, carry no
// information and are dropped.
func scanConfigLine(line []byte, config map[string]string) {
	text := strings.TrimLeft(string(line), " #\t")
	if strings.HasSuffix(text, "(Default)") {
		return
	}
	key, val, ok := strings.Cut(text, "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)
	if key == "" || val == "" {
		return
	}
	config[key] = val
}
