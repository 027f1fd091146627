package payload

import (
	"net/http"
	"sort"
	"strings"
)

// FromHeaders converts a host header list into a JSON-object Payload,
// lower-casing names and collapsing repeated headers into a JSON array.
func FromHeaders(h http.Header) Payload {
	obj := make(map[string]any, len(h))
	for k, vs := range h {
		lk := strings.ToLower(k)
		switch len(vs) {
		case 0:
		case 1:
			obj[lk] = vs[0]
		default:
			arr := make([]any, len(vs))
			for i, v := range vs {
				arr[i] = v
			}
			obj[lk] = arr
		}
	}
	return JSON(obj)
}

// ToHeaders converts a JSON-object Payload back into a header list, in
// stable (sorted by name) order. Non-object payloads yield an empty list.
func ToHeaders(p *Payload) http.Header {
	h := http.Header{}
	if p == nil || p.kind != KindJSON {
		return h
	}
	obj, ok := p.json.(map[string]any)
	if !ok {
		return h
	}
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		switch v := obj[k].(type) {
		case string:
			h.Add(k, v)
		case []any:
			for _, e := range v {
				if s, ok := e.(string); ok {
					h.Add(k, s)
				}
			}
		}
	}
	return h
}
