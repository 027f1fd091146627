// Package payload implements the tagged value that moves along links in the
// dataflow graph: opaque bytes, a structured JSON document, or a carried
// error.
package payload

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Kind identifies which variant of Payload is populated.
type Kind int

const (
	// KindRaw holds an opaque byte string.
	KindRaw Kind = iota
	// KindJSON holds a structured JSON document, including null, string,
	// object, and array values.
	KindJSON
	// KindError holds a carried failure message.
	KindError
)

// ContentTypeJSON is the content type reported by and matched against
// Payload values of KindJSON.
const ContentTypeJSON = "application/json"

const contentTypeFormURLEncoded = "application/x-www-form-urlencoded"

// Payload is a closed tagged union: Raw, JSON, or Error. The zero value is
// not meaningful; construct one with Raw, JSON, or Error.
type Payload struct {
	kind Kind
	raw  []byte
	json any
	err  string
}

// Raw builds an opaque-bytes Payload.
func Raw(b []byte) Payload {
	return Payload{kind: KindRaw, raw: b}
}

// JSON builds a structured-JSON Payload. v should be a value produced by
// (or compatible with) encoding/json unmarshaling: map[string]any,
// []any, string, float64, bool, or nil.
func JSON(v any) Payload {
	return Payload{kind: KindJSON, json: v}
}

// Error builds a carried-failure Payload.
func Error(message string) Payload {
	return Payload{kind: KindError, err: message}
}

// Kind reports which variant p holds.
func (p Payload) Kind() Kind { return p.kind }

// IsError reports whether p is the Error variant.
func (p Payload) IsError() bool { return p.kind == KindError }

// ErrorMessage returns the carried message; only meaningful when
// p.Kind() == KindError.
func (p Payload) ErrorMessage() string { return p.err }

// RawBytes returns the raw bytes; only meaningful when p.Kind() == KindRaw.
func (p Payload) RawBytes() []byte { return p.raw }

// JSONValue returns the structured value; only meaningful when
// p.Kind() == KindJSON.
func (p Payload) JSONValue() any { return p.json }

// ContentType returns the content type Payload implies on the wire:
// application/json for JSON, and none for Raw or Error.
func (p Payload) ContentType() (string, bool) {
	if p.kind == KindJSON {
		return ContentTypeJSON, true
	}
	return "", false
}

// Len reports the byte length of the payload when it is cheaply known
// without encoding (Raw and Error), or false for JSON.
func (p Payload) Len() (int, bool) {
	switch p.kind {
	case KindRaw:
		return len(p.raw), true
	case KindError:
		return len(p.err), true
	default:
		return 0, false
	}
}

// ToBytes encodes the payload for the wire. requestedContentType is the
// content type the caller intends to send the bytes under; it only changes
// the encoding of a KindJSON payload holding a bare string: unless the
// requested content type is application/json, a JSON string encodes as its
// own literal bytes (unquoted); every other JSON value always encodes as
// canonical JSON text. Raw passes through unchanged. Error always fails.
func (p Payload) ToBytes(requestedContentType string) ([]byte, error) {
	switch p.kind {
	case KindRaw:
		return p.raw, nil
	case KindError:
		return nil, errors.New(p.err)
	case KindJSON:
		if s, ok := p.json.(string); ok && !isJSONContentType(requestedContentType) {
			return []byte(s), nil
		}
		b, err := json.Marshal(p.json)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, errors.New("unknown payload kind")
	}
}

func isJSONContentType(ct string) bool {
	return strings.Contains(ct, ContentTypeJSON)
}

// FromBytes decodes a byte string given its content type, per the table in
// the data model: application/json parses as JSON (falling back to a
// best-effort repair of slightly malformed JSON before giving up and
// producing an Error payload); application/x-www-form-urlencoded parses
// into a JSON object; everything else is Raw.
func FromBytes(data []byte, contentType string) Payload {
	switch {
	case isJSONContentType(contentType):
		return decodeJSON(data)
	case strings.Contains(contentType, contentTypeFormURLEncoded):
		return decodeForm(data)
	default:
		cp := make([]byte, len(data))
		copy(cp, data)
		return Raw(cp)
	}
}

func decodeJSON(data []byte) Payload {
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		return JSON(v)
	} else if repaired, rerr := jsonrepair.JSONRepair(string(data)); rerr == nil {
		var rv any
		if err2 := json.Unmarshal([]byte(repaired), &rv); err2 == nil {
			return JSON(rv)
		}
		return Error(err.Error())
	} else {
		return Error(err.Error())
	}
}

func decodeForm(data []byte) Payload {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return Error(err.Error())
	}
	obj := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			obj[k] = vs[0]
			continue
		}
		arr := make([]any, len(vs))
		for i, v := range vs {
			arr[i] = v
		}
		obj[k] = arr
	}
	return JSON(obj)
}

// Null returns the JSON null payload, used by nodes (e.g. property.set)
// that must return a placeholder success value.
func Null() Payload { return JSON(nil) }
