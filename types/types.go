package types

import "strings"

// Status - Normalized outcome tag of a single URL check
type Status string

const (
	StatusInvalidURL      Status = "invalid-url"
	StatusOK              Status = "ok"
	StatusNotFound        Status = "not-found"
	StatusGone            Status = "gone"
	StatusForbidden       Status = "forbidden"
	StatusRateLimited     Status = "rate-limited"
	StatusServerError     Status = "server-error"
	StatusOther           Status = "other"
	StatusTimeout         Status = "timeout"
	StatusConnectionError Status = "connection-error"
	StatusError           Status = "error"
)

// AllStatuses lists every tag in report order.
var AllStatuses = []Status{
	StatusOK,
	StatusNotFound,
	StatusGone,
	StatusForbidden,
	StatusRateLimited,
	StatusServerError,
	StatusOther,
	StatusTimeout,
	StatusConnectionError,
	StatusError,
	StatusInvalidURL,
}

// Valid reports whether s is one of the known tags.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Network reports whether the tag can only come from a request without an HTTP response.
func (s Status) Network() bool {
	switch s {
	case StatusInvalidURL, StatusTimeout, StatusConnectionError, StatusError:
		return true
	}
	return false
}

// DefaultIdentifier is used for requests that carry no identifier.
const DefaultIdentifier = "N/A"

// CheckRequest - One URL to check, as supplied by the input side
type CheckRequest struct {
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
}

// NewCheckRequest trims the URL and fills in the default identifier.
func NewCheckRequest(identifier, url string) CheckRequest {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		identifier = DefaultIdentifier
	}
	return CheckRequest{Identifier: identifier, URL: strings.TrimSpace(url)}
}

// Key is the deduplication identity of the request.
func (r CheckRequest) Key() string {
	return strings.TrimSpace(r.URL)
}

// CheckResult - Resolved status of one CheckRequest
type CheckResult struct {
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
	// Code is 0 when no HTTP response was obtained.
	Code   int    `json:"code"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	// ContentLength is -1 when the server did not report a size.
	ContentLength int64 `json:"content_length"`
	Attempts      int   `json:"attempts"`
}

// OK reports whether the URL resolved to a live object.
func (r CheckResult) OK() bool {
	return r.Status == StatusOK
}

// Tally - Result counts per tag plus the report groups
type Tally struct {
	ByStatus     map[Status]int `json:"by_status"`
	OK           int            `json:"ok"`
	NotFound     int            `json:"not_found"`
	Gone         int            `json:"gone"`
	Forbidden    int            `json:"forbidden"`
	ServerErrors int            `json:"server_errors"` // server-error and rate-limited
	Other        int            `json:"other"`
}

// NewTally returns an empty tally.
func NewTally() Tally {
	return Tally{ByStatus: make(map[Status]int, len(AllStatuses))}
}

// Add counts one result.
func (t *Tally) Add(s Status) {
	if t.ByStatus == nil {
		t.ByStatus = make(map[Status]int, len(AllStatuses))
	}
	t.ByStatus[s]++
	switch s {
	case StatusOK:
		t.OK++
	case StatusNotFound:
		t.NotFound++
	case StatusGone:
		t.Gone++
	case StatusForbidden:
		t.Forbidden++
	case StatusServerError, StatusRateLimited:
		t.ServerErrors++
	default:
		t.Other++
	}
}

// Sum returns the number of counted results.
func (t Tally) Sum() int {
	return t.OK + t.NotFound + t.Gone + t.Forbidden + t.ServerErrors + t.Other
}

// Report - Final outcome of a batch run
type Report struct {
	RunID   string        `json:"run_id,omitempty"`
	Results []CheckResult `json:"results"` // input order
	Tally   Tally         `json:"tally"`
	// Total is the number of unique URLs.
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Duplicates int `json:"duplicates"`
	// NextIndex is the lowest deduplicated index still without a result.
	NextIndex int  `json:"next_index"`
	Complete  bool `json:"complete"`
}
