package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	results := []types.CheckResult{
		{Identifier: "sku-1", URL: "https://cdn.example.com/1.jpg", Code: 200, Status: types.StatusOK, Reason: "OK", ContentLength: 2048},
		{Identifier: "sku-2 / red", URL: "https://cdn.example.com/2.jpg", Code: 0, Status: types.StatusConnectionError, Reason: "dial tcp, refused", ContentLength: -1},
		{Identifier: "N/A", URL: "", Code: 0, Status: types.StatusInvalidURL, Reason: "invalid url: empty value", ContentLength: -1},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, results))

	expected := "identifier,status,code,url,reason,content_length\n" +
		"sku-1,ok,200,https://cdn.example.com/1.jpg,OK,2048\n" +
		"sku-2 / red,connection-error,0,https://cdn.example.com/2.jpg,\"dial tcp, refused\",\n" +
		"N/A,invalid-url,0,,invalid url: empty value,\n"
	assert.Equal(t, expected, buf.String())
}

func TestWriteCSV_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "identifier,status,code,url,reason,content_length\n", buf.String())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	results := []types.CheckResult{
		{Identifier: "sku-1", URL: "https://cdn.example.com/1.jpg", Code: 404, Status: types.StatusNotFound, Reason: "Not Found", ContentLength: -1},
	}
	require.NoError(t, WriteFile(path, results))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "identifier,status,code,url,reason,content_length\n"+
		"sku-1,not-found,404,https://cdn.example.com/1.jpg,Not Found,\n", string(data))

	err = WriteFile(filepath.Join(t.TempDir(), "missing", "report.csv"), results)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create report")
}

// failingCloser accepts writes and fails on Close, like a file whose final flush is lost.
type failingCloser struct {
	bytes.Buffer
	closed bool
}

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("input/output error")
}

func TestWriteFile_CloseErrorIsReturned(t *testing.T) {
	wc := &failingCloser{}
	err := writeAndClose(wc, nil)

	require.Error(t, err)
	assert.True(t, wc.closed)
	assert.Contains(t, err.Error(), "failed to close report")
	assert.Contains(t, err.Error(), "input/output error")
	assert.Equal(t, "identifier,status,code,url,reason,content_length\n", wc.String())
}
