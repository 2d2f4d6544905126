package gate

import (
	"net/url"
	"strings"
)

// Param is one key/value pair of a query string.
type Param struct {
	Key   string
	Value string
}

// Query is a query string that keeps its parameters in request order.
// url.Values sorts keys when encoding, which would turn every corrected URL
// into a reordered one.
type Query struct {
	params []Param
}

// ParseQuery parses a raw query string. Segments that fail to unescape are
// kept verbatim.
func ParseQuery(raw string) *Query {
	q := &Query{}
	for _, seg := range strings.Split(raw, "&") {
		if seg == "" {
			continue
		}
		k, v, _ := strings.Cut(seg, "=")
		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}
		if uv, err := url.QueryUnescape(v); err == nil {
			v = uv
		}
		q.params = append(q.params, Param{Key: k, Value: v})
	}
	return q
}

// Has reports whether key appears at least once.
func (q *Query) Has(key string) bool {
	for _, p := range q.params {
		if p.Key == key {
			return true
		}
	}
	return false
}

// Get returns the first value for key, or "" when absent.
func (q *Query) Get(key string) string {
	v, _ := q.Lookup(key)
	return v
}

// Lookup returns the first value for key and whether it was present.
func (q *Query) Lookup(key string) (string, bool) {
	for _, p := range q.params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Del removes every occurrence of key and reports whether any was removed.
func (q *Query) Del(key string) bool {
	kept := q.params[:0]
	for _, p := range q.params {
		if p.Key != key {
			kept = append(kept, p)
		}
	}
	removed := len(kept) != len(q.params)
	q.params = kept
	return removed
}

// KeepFirst drops every occurrence of key after the first and reports
// whether any was dropped.
func (q *Query) KeepFirst(key string) bool {
	seen := false
	kept := q.params[:0]
	for _, p := range q.params {
		if p.Key == key {
			if seen {
				continue
			}
			seen = true
		}
		kept = append(kept, p)
	}
	removed := len(kept) != len(q.params)
	q.params = kept
	return removed
}

// Len returns the number of parameters.
func (q *Query) Len() int {
	return len(q.params)
}

// Encode renders the query in its current order.
func (q *Query) Encode() string {
	parts := make([]string, len(q.params))
	for i, p := range q.params {
		parts[i] = url.QueryEscape(p.Key) + "=" + url.QueryEscape(p.Value)
	}
	return strings.Join(parts, "&")
}

// WithQuery returns path with q appended, omitting "?" for an empty query.
func WithQuery(path string, q *Query) string {
	if q.Len() == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
