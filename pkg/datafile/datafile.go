// Package datafile reads and writes model data files in the two structured
// input conventions compiled programs accept: JSON, and the R dump subset
// (scalar, vector, and array declarations) described in the CmdStan manual.
package datafile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	gqerrors "github.com/gqflow/gqflow/pkg/errors"
)

// Data is a model data mapping: variable name to scalar, []float64, or
// [][]float64.
type Data map[string]interface{}

// WriteJSON writes data as a JSON file.
func WriteJSON(path string, data Data) error {
	out, err := json.Marshal(data)
	if err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to encode data")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to write data file").
			WithContext("path", path)
	}
	return nil
}

// WriteRdump writes data in R dump format.
func WriteRdump(path string, data Data) error {
	var sb strings.Builder
	for key, val := range data {
		sb.WriteString(rdumpDecl(key, val))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to write data file").
			WithContext("path", path)
	}
	return nil
}

func rdumpDecl(key string, val interface{}) string {
	switch v := val.(type) {
	case []float64:
		if len(v) == 1 {
			return key + " <- " + formatFloat(v[0])
		}
		return key + " <- " + rdumpVector(v)
	case [][]float64:
		// Column-major flattening with .Dim, matching the sampler's
		// own dump convention.
		rows := len(v)
		cols := 0
		if rows > 0 {
			cols = len(v[0])
		}
		flat := make([]float64, 0, rows*cols)
		for c := 0; c < cols; c++ {
			for r := 0; r < rows; r++ {
				flat = append(flat, v[r][c])
			}
		}
		return key + " <- structure(" + rdumpVector(flat) +
			", .Dim = c(" + strconv.Itoa(rows) + ", " + strconv.Itoa(cols) + "))"
	case float64:
		return key + " <- " + formatFloat(v)
	case int:
		return key + " <- " + strconv.Itoa(v)
	case []int:
		f := make([]float64, len(v))
		for i, x := range v {
			f[i] = float64(x)
		}
		return rdumpDecl(key, f)
	default:
		out, _ := json.Marshal(v)
		return key + " <- " + string(out)
	}
}

func rdumpVector(v []float64) string {
	var sb strings.Builder
	sb.WriteString("c(")
	for i, x := range v {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatFloat(x))
	}
	sb.WriteByte(')')
	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var structurePat = regexp.MustCompile(
	`structure\(\s*c\((?P<vals>[^)]*)\)(,\s*\.Dim\s*=\s*c\s*\((?P<dims>[^)]*)\s*\))?\)`)

// ReadRdump parses variable declarations from an R dump file. Declarations
// may span multiple lines; values are scalars, c(...) vectors, or
// structure(c(...), .Dim = c(...)) arrays.
func ReadRdump(path string) (Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, gqerrors.Wrap(err, gqerrors.CodeMalformedInput, "failed to read data file").
			WithContext("path", path)
	}

	data := make(Data)
	lines := strings.Split(string(raw), "\n")

	idx := 0
	for idx < len(lines) && !strings.Contains(lines[idx], "<-") {
		idx++
	}
	if idx == len(lines) {
		return data, nil
	}
	start := idx
	idx++
	for {
		for idx < len(lines) && !strings.Contains(lines[idx], "<-") {
			idx++
		}
		decl := strings.ReplaceAll(strings.Join(lines[start:idx], ""), "\n", "")
		lhs, rhs, ok := strings.Cut(decl, "<-")
		if !ok {
			return nil, gqerrors.MalformedInput(path, "bad R dump declaration")
		}
		name := strings.Trim(strings.TrimSpace(lhs), `"`)
		val, err := parseRdumpValue(strings.TrimSpace(rhs))
		if err != nil {
			if e, ok := err.(*gqerrors.Error); ok {
				e.WithContext("variable", name)
			}
			return nil, err
		}
		data[name] = val
		if idx == len(lines) {
			break
		}
		start = idx
		idx++
	}
	return data, nil
}

// parseRdumpValue handles the right hand side of a declaration: a scalar,
// a c(...) vector, or a structure(...) with optional .Dim.
func parseRdumpValue(rhs string) (interface{}, error) {
	rhs = strings.ReplaceAll(rhs, "L", "") // strip R long int qualifier

	if m := structurePat.FindStringSubmatch(rhs); m != nil {
		vals, err := parseFloatList(m[structurePat.SubexpIndex("vals")])
		if err != nil {
			return nil, err
		}
		dimsText := m[structurePat.SubexpIndex("dims")]
		if dimsText == "" {
			return vals, nil
		}
		dims, err := parseFloatList(dimsText)
		if err != nil {
			return nil, err
		}
		if len(dims) == 2 {
			rows, cols := int(dims[0]), int(dims[1])
			if rows*cols != len(vals) {
				return nil, gqerrors.New(gqerrors.CodeMalformedInput, "R dump .Dim does not match values")
			}
			out := make([][]float64, rows)
			for r := range out {
				out[r] = make([]float64, cols)
				for c := 0; c < cols; c++ {
					out[r][c] = vals[c*rows+r]
				}
			}
			return out, nil
		}
		return vals, nil
	}

	if strings.HasPrefix(rhs, "c(") && strings.HasSuffix(rhs, ")") {
		return parseFloatList(rhs[2 : len(rhs)-1])
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(rhs), 64)
	if err != nil {
		return nil, gqerrors.New(gqerrors.CodeMalformedInput, "bad value in R dump file").
			WithContext("value", rhs)
	}
	return v, nil
}

func parseFloatList(text string) ([]float64, error) {
	parts := strings.Split(text, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, gqerrors.New(gqerrors.CodeMalformedInput, "bad value in R dump file").
				WithContext("value", p)
		}
		out = append(out, v)
	}
	return out, nil
}

// Resolve returns a file path for the given data reference. A string is
// used as-is after checking it exists (R dump files are additionally
// parsed, so a syntax error fails the run before any draw is dispatched);
// a Data mapping is written to a temporary JSON file under dir. The
// cleanup func removes any temporary file and is safe to call always.
func Resolve(data interface{}, dir string) (string, func(), error) {
	switch v := data.(type) {
	case nil:
		return "", func() {}, nil
	case string:
		if v == "" {
			return "", func() {}, nil
		}
		if _, err := os.Stat(v); err != nil {
			return "", func() {}, gqerrors.Wrap(err, gqerrors.CodeMalformedInput, "data file not found").
				WithContext("path", v)
		}
		if isRdumpPath(v) {
			if _, err := ReadRdump(v); err != nil {
				return "", func() {}, err
			}
		}
		return v, func() {}, nil
	case Data:
		if dir == "" {
			dir = os.TempDir()
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", func() {}, gqerrors.Wrap(err, gqerrors.CodeWriteFailed, "failed to create data dir").
				WithContext("dir", dir)
		}
		path := filepath.Join(dir, "gq-data-"+uuid.NewString()+".json")
		if err := WriteJSON(path, v); err != nil {
			return "", func() {}, err
		}
		return path, func() { os.Remove(path) }, nil
	default:
		return "", func() {}, gqerrors.New(gqerrors.CodeConfig, "unsupported data reference type")
	}
}

func isRdumpPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".r", ".rdump":
		return true
	}
	return false
}
