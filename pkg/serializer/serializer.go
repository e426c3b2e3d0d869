// Package serializer turns arbitrary application values into plain,
// cycle-safe representations and stores them as pancakes.
//
// Values may describe themselves through LocketExporter,
// encoding.BinaryMarshaler or json.Marshaler (in that priority order).
// Everything else is copied structurally. Shared and circular references
// are kept: visiting the same source twice yields the same representation.
package serializer

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/i5heu/ouroboros-locket/pkg/pancake"
)

var ErrUnsupportedType = errors.New("serializer: unsupported type")

// Serialize normalizes v and flattens the result into a pancake.
func Serialize(v any) (pancake.Pancake, error) {
	rep, err := GetSerializableRepresentation(v)
	if err != nil {
		return nil, err
	}
	return pancake.Flatten(rep), nil
}

// GetSerializableRepresentation recursively replaces every reachable value
// with its one level export. The result only contains map[string]any, []any,
// byte-blobs and leaves.
func GetSerializableRepresentation(origin any) (any, error) {
	n := &normalizer{produced: make(map[pancake.Identity]any)}
	rep, _, err := n.normalize(origin)
	return rep, err
}

type normalizer struct {
	// source identity -> produced representation
	produced map[pancake.Identity]any
}

// normalize returns the representation of source. keep is false for values
// that have no representation at all (funcs, chans) and are dropped.
func (n *normalizer) normalize(source any) (rep any, keep bool, err error) {
	id, hasIdentity := pancake.IdentityOf(source)
	if hasIdentity {
		if produced, found := n.produced[id]; found {
			return produced, true, nil
		}
	}

	current, keep, err := oneLevel(source)
	if err != nil || !keep {
		return nil, keep, err
	}

	switch container := current.(type) {
	case map[string]any:
		if hasIdentity {
			n.produced[id] = container
		}
		for key, member := range container {
			normalized, keepMember, err := n.normalize(member)
			if err != nil {
				return nil, false, err
			}
			if !keepMember {
				delete(container, key)
				continue
			}
			container[key] = normalized
		}
		if tagger, ok := source.(TypeTagger); ok {
			container[TypeKey] = tagger.LocketType()
		}
		return container, true, nil

	case []any:
		if hasIdentity {
			n.produced[id] = container
		}
		for i, member := range container {
			normalized, keepMember, err := n.normalize(member)
			if err != nil {
				return nil, false, err
			}
			if !keepMember {
				normalized = nil
			}
			container[i] = normalized
		}
		return container, true, nil
	}

	return current, true, nil
}

func oneLevel(v any) (any, bool, error) {
	if v == nil {
		return nil, true, nil
	}

	if hasCustomExporter(v) {
		exported, err := useCustomExporter(v)
		if err != nil {
			return nil, false, fmt.Errorf("serializer: exporting %T: %w", v, err)
		}
		return shallowCopy(reflect.ValueOf(exported))
	}

	return shallowCopy(reflect.ValueOf(v))
}

// shallowCopy copies one level of rv into plain data. Members are copied by
// reference and normalized later.
func shallowCopy(rv reflect.Value) (any, bool, error) {
	if !rv.IsValid() {
		return nil, true, nil
	}
	if rv.CanInterface() {
		if v := rv.Interface(); isOpaqueLeaf(v) {
			return leafValue(v), true, nil
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), true, nil
	case reflect.String:
		return rv.String(), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u), true, nil
		}
		return float64(rv.Uint()), true, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true, nil

	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return nil, true, nil
		}
		return shallowCopy(rv.Elem())

	case reflect.Struct:
		st := rv.Type()
		out := make(map[string]any, st.NumField())
		for i := 0; i < st.NumField(); i++ {
			name, ok := pancake.MemberName(st.Field(i))
			if !ok {
				continue
			}
			out[name] = rv.Field(i).Interface()
		}
		return out, true, nil

	case reflect.Map:
		if rv.IsNil() {
			return nil, true, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[mapKey(iter.Key())] = iter.Value().Interface()
		}
		return out, true, nil

	case reflect.Slice:
		if rv.IsNil() {
			return nil, true, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), rv.Bytes()...), true, nil
		}
		return sequenceOf(rv), true, nil

	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			out := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(out), rv)
			return out, true, nil
		}
		return sequenceOf(rv), true, nil

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, false, nil
	}

	return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

func sequenceOf(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}
