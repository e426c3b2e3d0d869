package binaryCoder

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/i5heu/ouroboros-locket/pkg/pancake"
	"google.golang.org/protobuf/types/known/structpb"
)

// Reserved one-key wrappers for values structpb has no kind for.
const (
	keyNumberLong = "$numberLong"
	keyBinary     = "$binary"
	keyDate       = "$date"
	keyRegex      = "$regex"
	keyRawString  = "$rawString"
)

// rawKeyPrefix marks map keys that are not valid UTF-8. The rest of the key
// is their base64 encoding.
const rawKeyPrefix = "$~"

// Binary is a decoded byte-blob. It keeps blobs apart from sequences until
// the owner of the document converts it with BlobBytes.
type Binary []byte

func (b Binary) BlobBytes() []byte { return []byte(b) }

type blobWrapper interface {
	BlobBytes() []byte
}

func toProto(v any) (*structpb.Value, error) {
	switch val := v.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case bool:
		return structpb.NewBoolValue(val), nil
	case string:
		if !utf8.ValidString(val) {
			return wrapped(keyRawString, base64.StdEncoding.EncodeToString([]byte(val))), nil
		}
		return structpb.NewStringValue(val), nil
	case float64:
		return structpb.NewNumberValue(val), nil
	case float32:
		return structpb.NewNumberValue(float64(val)), nil

	case int:
		return wrapped(keyNumberLong, strconv.FormatInt(int64(val), 10)), nil
	case int8:
		return wrapped(keyNumberLong, strconv.FormatInt(int64(val), 10)), nil
	case int16:
		return wrapped(keyNumberLong, strconv.FormatInt(int64(val), 10)), nil
	case int32:
		return wrapped(keyNumberLong, strconv.FormatInt(int64(val), 10)), nil
	case int64:
		return wrapped(keyNumberLong, strconv.FormatInt(val, 10)), nil
	case uint:
		return wrapped(keyNumberLong, strconv.FormatUint(uint64(val), 10)), nil
	case uint8:
		return wrapped(keyNumberLong, strconv.FormatUint(uint64(val), 10)), nil
	case uint16:
		return wrapped(keyNumberLong, strconv.FormatUint(uint64(val), 10)), nil
	case uint32:
		return wrapped(keyNumberLong, strconv.FormatUint(uint64(val), 10)), nil
	case uint64:
		return wrapped(keyNumberLong, strconv.FormatUint(val, 10)), nil

	case []byte:
		return wrapped(keyBinary, base64.StdEncoding.EncodeToString(val)), nil
	case blobWrapper:
		return wrapped(keyBinary, base64.StdEncoding.EncodeToString(val.BlobBytes())), nil
	case time.Time:
		return wrapped(keyDate, formatDate(val)), nil
	case *time.Time:
		if val == nil {
			return structpb.NewNullValue(), nil
		}
		return wrapped(keyDate, formatDate(*val)), nil
	case *regexp.Regexp:
		if val == nil {
			return structpb.NewNullValue(), nil
		}
		return wrapped(keyRegex, val.String()), nil

	case map[string]any:
		fields := make(map[string]*structpb.Value, len(val))
		for key, member := range val {
			pv, err := toProto(member)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", key, err)
			}
			fields[escapeKey(key)] = pv
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
	case pancake.Pancake:
		return listToProto(val)
	case []any:
		return listToProto(val)
	}

	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func listToProto(seq []any) (*structpb.Value, error) {
	values := make([]*structpb.Value, len(seq))
	for i, member := range seq {
		pv, err := toProto(member)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		values[i] = pv
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
}

func wrapped(key, value string) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{
		Fields: map[string]*structpb.Value{key: structpb.NewStringValue(value)},
	})
}

// formatDate writes a date as "<unix seconds>.<nanoseconds>", which covers
// every year time.Time can hold.
func formatDate(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

func parseDate(raw string) (time.Time, error) {
	secPart, nsecPart, found := strings.Cut(raw, ".")
	if !found {
		return time.Time{}, fmt.Errorf("%w: %s %q", ErrInvalidPayload, keyDate, raw)
	}
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q", ErrInvalidPayload, keyDate, raw)
	}
	nsec, err := strconv.ParseInt(nsecPart, 10, 64)
	if err != nil || nsec < 0 || nsec >= int64(time.Second) {
		return time.Time{}, fmt.Errorf("%w: %s %q", ErrInvalidPayload, keyDate, raw)
	}
	return time.Unix(sec, nsec).UTC(), nil
}

func fromProto(pv *structpb.Value) (any, error) {
	switch kind := pv.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_BoolValue:
		return kind.BoolValue, nil
	case *structpb.Value_NumberValue:
		return kind.NumberValue, nil
	case *structpb.Value_StringValue:
		return kind.StringValue, nil

	case *structpb.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, member := range values {
			v, err := fromProto(member)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *structpb.Value_StructValue:
		fields := kind.StructValue.GetFields()
		if len(fields) == 1 {
			for key, member := range fields {
				if isReservedKey(key) {
					return unwrap(key, member)
				}
			}
		}
		out := make(map[string]any, len(fields))
		for key, member := range fields {
			v, err := fromProto(member)
			if err != nil {
				return nil, err
			}
			name, err := unescapeKey(key)
			if err != nil {
				return nil, err
			}
			out[name] = v
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: unknown value kind %T", ErrInvalidPayload, pv.GetKind())
}

func unwrap(key string, member *structpb.Value) (any, error) {
	s, ok := member.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s wrapper without string content", ErrInvalidPayload, key)
	}
	raw := s.StringValue

	switch key {
	case keyNumberLong:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidPayload, key, raw)
		}
		return n, nil
	case keyBinary:
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
		}
		return Binary(b), nil
	case keyDate:
		return parseDate(raw)
	case keyRawString:
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
		}
		return string(b), nil
	default: // keyRegex
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
		}
		return re, nil
	}
}

func isReservedKey(key string) bool {
	switch key {
	case keyNumberLong, keyBinary, keyDate, keyRegex, keyRawString:
		return true
	}
	return false
}

// escapeKey prefixes user keys starting with "$" so they never collide
// with a reserved wrapper. Keys that are not valid UTF-8 are stored base64
// encoded behind rawKeyPrefix.
func escapeKey(key string) string {
	if !utf8.ValidString(key) {
		return rawKeyPrefix + base64.StdEncoding.EncodeToString([]byte(key))
	}
	if strings.HasPrefix(key, "$") {
		return "$" + key
	}
	return key
}

func unescapeKey(key string) (string, error) {
	switch {
	case strings.HasPrefix(key, rawKeyPrefix):
		b, err := base64.StdEncoding.DecodeString(key[len(rawKeyPrefix):])
		if err != nil {
			return "", fmt.Errorf("%w: key %q: %v", ErrInvalidPayload, key, err)
		}
		return string(b), nil
	case strings.HasPrefix(key, "$"):
		return key[1:], nil
	}
	return key, nil
}
