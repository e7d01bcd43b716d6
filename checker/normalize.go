package checker

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidURL is returned for values that cannot be checked over HTTP.
var ErrInvalidURL = errors.New("invalid url")

// Normalize returns the trimmed URL held by raw, or ErrInvalidURL.
// It never touches the network.
func Normalize(raw any) (string, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return "", errors.Wrap(ErrInvalidURL, "empty value")
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return "", errors.Wrapf(ErrInvalidURL, "non-text value of type %T", raw)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.Wrap(ErrInvalidURL, "empty value")
	}

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", errors.Wrapf(ErrInvalidURL, "unsupported scheme in %q", s)
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidURL, "unparsable url %q", s)
	}
	if u.Host == "" {
		return "", errors.Wrapf(ErrInvalidURL, "missing host in %q", s)
	}
	return s, nil
}
