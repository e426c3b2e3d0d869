package serializer

import (
	"github.com/i5heu/ouroboros-locket/pkg/pancake"
)

// Constructor builds a typed object from the plain members of a tagged node.
// References are not resolved yet; they are handed to the Relinker of the
// same tag afterwards.
type Constructor func(plain map[string]any) (any, error)

// Relinker restores the references of an object built by a Constructor.
// fallback is the default relink behaviour.
type Relinker func(obj any, links pancake.Links, fallback func(obj any, links pancake.Links) error) error

// Deserialize expands a pancake produced by Serialize. Nodes whose TypeKey
// member names a registered constructor are built with it; unregistered tags
// fall back to plain maps.
func Deserialize(p pancake.Pancake, constructors map[string]Constructor, relinkers map[string]Relinker) (any, error) {
	return pancake.Unflatten(p, newTypedBuilder(constructors, relinkers))
}

// typedBuilder is the build context of one Deserialize call. It remembers
// which tag every constructed object was built for.
type typedBuilder struct {
	constructors map[string]Constructor
	relinkers    map[string]Relinker
	tags         map[pancake.Identity]string
}

func newTypedBuilder(constructors map[string]Constructor, relinkers map[string]Relinker) *typedBuilder {
	return &typedBuilder{
		constructors: constructors,
		relinkers:    relinkers,
		tags:         make(map[pancake.Identity]string),
	}
}

func (b *typedBuilder) Construct(plain any) (any, error) {
	members, ok := plain.(map[string]any)
	if !ok {
		return pancake.DefaultConstruct(plain), nil
	}
	tag, ok := members[TypeKey].(string)
	if !ok {
		return pancake.DefaultConstruct(plain), nil
	}

	var obj any = members
	if constructor := b.constructors[tag]; constructor != nil {
		constructed, err := constructor(members)
		if err != nil {
			return nil, err
		}
		obj = constructed
	}

	if id, ok := pancake.IdentityOf(obj); ok {
		b.tags[id] = tag
	}
	return obj, nil
}

func (b *typedBuilder) Relink(obj any, links pancake.Links) error {
	if id, ok := pancake.IdentityOf(obj); ok {
		if tag, tagged := b.tags[id]; tagged {
			if relinker := b.relinkers[tag]; relinker != nil {
				return relinker(obj, links, pancake.DefaultRelink)
			}
		}
	}
	return pancake.DefaultRelink(obj, links)
}
