package pancake

import (
	"errors"
	"fmt"
	"reflect"
)

var ErrRelink = errors.New("pancake: cannot relink")

// Links holds the resolved references of one node. Map nodes use Named,
// sequence nodes use Positional.
type Links struct {
	Named      map[string]any
	Positional map[int]any
}

// Len returns the number of resolved references.
func (l Links) Len() int {
	return len(l.Named) + len(l.Positional)
}

// Hooks customise how nodes are turned into objects during Unflatten.
//
// Construct receives the plain members of a node (references removed) and
// returns the object that represents the node. Returning nil skips the node
// and everything only it references. Relink is called once all reachable
// nodes are constructed and has to fill the references into the object.
type Hooks interface {
	Construct(plain any) (any, error)
	Relink(obj any, links Links) error
}

// DefaultHooks reconstructs plain maps and sequences.
type DefaultHooks struct{}

func (DefaultHooks) Construct(plain any) (any, error) {
	return DefaultConstruct(plain), nil
}

func (DefaultHooks) Relink(obj any, links Links) error {
	return DefaultRelink(obj, links)
}

// DefaultConstruct returns the plain members unchanged.
func DefaultConstruct(plain any) any {
	return plain
}

// DefaultRelink merges the links as members into obj. Maps and sequences are
// filled directly, pointers to structs are filled field by field using
// MemberName. Links that do not fit a struct field are ignored.
func DefaultRelink(obj any, links Links) error {
	switch o := obj.(type) {
	case map[string]any:
		for name, target := range links.Named {
			o[name] = target
		}
		return nil
	case []any:
		for pos, target := range links.Positional {
			if pos >= 0 && pos < len(o) {
				o[pos] = target
			}
		}
		return nil
	}

	if links.Len() == 0 {
		return nil
	}
	return relinkStruct(obj, links)
}

func relinkStruct(obj any, links Links) error {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: %T is not a pointer to a struct", ErrRelink, obj)
	}

	sv := rv.Elem()
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := MemberName(st.Field(i))
		if !ok {
			continue
		}
		target, linked := links.Named[name]
		if !linked {
			continue
		}

		field := sv.Field(i)
		if !field.CanSet() {
			continue
		}
		if target == nil {
			field.Set(reflect.Zero(field.Type()))
			continue
		}
		if tv := reflect.ValueOf(target); tv.Type().AssignableTo(field.Type()) {
			field.Set(tv)
		}
	}

	return nil
}
