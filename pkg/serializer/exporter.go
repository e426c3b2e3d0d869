package serializer

import (
	"encoding"
	"encoding/json"
	"math"
	"regexp"
	"time"
)

// TypeKey is the reserved member carrying a type tag in a representation.
const TypeKey = "!type"

// LocketExporter is the highest priority exporter. ToLocket returns the one
// level representation of the receiver; members of the result are
// normalized recursively.
type LocketExporter interface {
	ToLocket() any
}

// TypeTagger declares the type tag copied into the representation under
// TypeKey, which selects a constructor and relinker on Deserialize.
type TypeTagger interface {
	LocketType() string
}

// isOpaqueLeaf reports values that are passed through as-is even though
// some of them implement one of the lower priority exporters.
func isOpaqueLeaf(v any) bool {
	switch val := v.(type) {
	case nil, []byte, time.Time, *time.Time, *regexp.Regexp, regexp.Regexp:
		return true
	case float64:
		return math.IsNaN(val) || math.IsInf(val, 0)
	case float32:
		f := float64(val)
		return math.IsNaN(f) || math.IsInf(f, 0)
	}
	return false
}

// hasCustomExporter reports whether v implements any exporter.
func hasCustomExporter(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case LocketExporter, encoding.BinaryMarshaler, json.Marshaler:
		return true
	}
	return false
}

// useCustomExporter calls the exporter with the highest priority. Below
// LocketExporter come encoding.BinaryMarshaler, whose result becomes a
// byte-blob, and json.Marshaler, whose JSON result is decoded into plain data.
func useCustomExporter(v any) (any, error) {
	if locketExporter, ok := v.(LocketExporter); ok {
		return locketExporter.ToLocket(), nil
	}
	if isOpaqueLeaf(v) {
		return leafValue(v), nil
	}

	if binaryMarshaler, ok := v.(encoding.BinaryMarshaler); ok {
		b, err := binaryMarshaler.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	jsonMarshaler := v.(json.Marshaler)
	raw, err := jsonMarshaler.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return plain, nil
}

// leafValue normalizes opaque leaves that have a pointer or value twin.
func leafValue(v any) any {
	switch val := v.(type) {
	case *time.Time:
		if val == nil {
			return nil
		}
		return *val
	case regexp.Regexp:
		return regexp.MustCompile(val.String())
	case float32:
		return float64(val)
	}
	return v
}
