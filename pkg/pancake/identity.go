package pancake

import (
	"reflect"
	"strings"
)

// Identity is the address based key of a reference typed value. Two values
// share an Identity only if they are the same map, the same pointer or the
// same slice window (backing array and length).
type Identity struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// IdentityOf returns the identity of maps, pointers and non-empty slices.
// Values without a stable address (scalars, structs, nil, empty slices)
// report false and are never deduplicated.
func IdentityOf(v any) (Identity, bool) {
	if v == nil {
		return Identity{}, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer:
		if rv.IsNil() {
			return Identity{}, false
		}
		return Identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.Len() == 0 {
			return Identity{}, false
		}
		return Identity{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}, true
	}

	return Identity{}, false
}

// MemberName returns the member name used for an exported struct field: the
// json tag name if there is one, the Go field name otherwise. Fields tagged
// "-" and unexported fields report false.
func MemberName(sf reflect.StructField) (string, bool) {
	if !sf.IsExported() {
		return "", false
	}

	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}

	return sf.Name, true
}
