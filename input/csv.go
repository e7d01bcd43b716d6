package input

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var (
	// ErrMissingColumn is returned when a required column cannot be found in the header.
	ErrMissingColumn = errors.New("missing column")
	// ErrEmptyInput is returned for input without a header row.
	ErrEmptyInput = errors.New("empty input")
)

// identifierCandidates are tried in order when no identifier column is configured.
var identifierCandidates = []string{"id", "sku", "product_id", "name"}

// IdentifierSeparator joins multiple identifier columns.
const IdentifierSeparator = " / "

type Options struct {
	// URLColumn names the column holding the URL; auto-detected when empty.
	URLColumn string
	// IDColumns name the identifier columns; auto-detected when empty.
	IDColumns []string
	// JSONPath extracts the URL from a JSON document stored in the URL column (gjson syntax).
	JSONPath string
	// Comma is the field delimiter; ',' when zero.
	Comma rune
}

// ReadCSV parses a delimited feed into check requests, one per row (or per URL when
// JSONPath yields an array). Column errors are reported before any row is read.
func ReadCSV(r io.Reader, opts Options) ([]types.CheckRequest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	urlCol, err := resolveURLColumn(header, opts.URLColumn)
	if err != nil {
		return nil, err
	}
	idCols, err := resolveIDColumns(header, opts.IDColumns)
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("resolved input columns",
		"url_column", header[urlCol],
		"id_columns", len(idCols),
		"json_path", opts.JSONPath)

	var reqs []types.CheckRequest
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read line %d", line)
		}

		identifier := joinIdentifier(record, idCols)
		raw := field(record, urlCol)
		if opts.JSONPath == "" {
			reqs = append(reqs, types.NewCheckRequest(identifier, raw))
			continue
		}
		for _, u := range extractURLs(raw, opts.JSONPath) {
			reqs = append(reqs, types.NewCheckRequest(identifier, u))
		}
	}

	zap.S().Infow("input parsed", "rows", line-1, "requests", len(reqs))
	return reqs, nil
}

func resolveURLColumn(header []string, name string) (int, error) {
	if name != "" {
		if i := indexOf(header, name); i >= 0 {
			return i, nil
		}
		return -1, errors.Wrapf(ErrMissingColumn, "url column %q not in header %v", name, header)
	}
	if i := indexOf(header, "url"); i >= 0 {
		return i, nil
	}
	for i, h := range header {
		if strings.Contains(strings.ToLower(h), "url") {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrMissingColumn, "no url column in header %v", header)
}

func resolveIDColumns(header []string, names []string) ([]int, error) {
	if len(names) == 0 {
		for _, candidate := range identifierCandidates {
			if i := indexOf(header, candidate); i >= 0 {
				return []int{i}, nil
			}
		}
		return nil, nil
	}
	cols := make([]int, 0, len(names))
	for _, name := range names {
		i := indexOf(header, name)
		if i < 0 {
			return nil, errors.Wrapf(ErrMissingColumn, "identifier column %q not in header %v", name, header)
		}
		cols = append(cols, i)
	}
	return cols, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func joinIdentifier(record []string, cols []int) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		if v := strings.TrimSpace(field(record, c)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, IdentifierSeparator)
}

// extractURLs applies a gjson path to a JSON cell. Invalid JSON or a missing path yields
// one empty URL so the row still surfaces as invalid-url in the report.
func extractURLs(cell, path string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" || !gjson.Valid(cell) {
		return []string{""}
	}
	res := gjson.Get(cell, path)
	if !res.Exists() {
		return []string{""}
	}
	if res.IsArray() {
		var urls []string
		for _, item := range res.Array() {
			urls = append(urls, item.String())
		}
		if len(urls) == 0 {
			return []string{""}
		}
		return urls
	}
	return []string{res.String()}
}
