package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
)

// Header is the first row of every exported report.
var Header = []string{"identifier", "status", "code", "url", "reason", "content_length"}

// WriteCSV writes results as UTF-8 comma-separated text with a header row.
func WriteCSV(w io.Writer, results []types.CheckResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for _, r := range results {
		size := ""
		if r.ContentLength >= 0 {
			size = strconv.FormatInt(r.ContentLength, 10)
		}
		row := []string{
			r.Identifier,
			string(r.Status),
			strconv.Itoa(r.Code),
			r.URL,
			r.Reason,
			size,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "failed to write row for %s", r.URL)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush report")
}

// WriteFile writes the CSV report to path, replacing any existing file.
func WriteFile(path string, results []types.CheckResult) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create report")
	}
	return writeAndClose(f, results)
}

func writeAndClose(wc io.WriteCloser, results []types.CheckResult) (err error) {
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close report")
		}
	}()
	return WriteCSV(wc, results)
}
