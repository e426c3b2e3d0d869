// Package pancake flattens a graph of maps, sequences and byte-blobs into a
// flat list of nodes that reference each other by index, and expands such a
// list back into a graph.
//
// A pancake is meant to sit between an object's plain representation and an
// actual wire or storage encoding. Shared and circular references survive
// the round-trip because every container is stored exactly once.
//
// Flatten is destructive: the containers of the given graph are rewritten in
// place, their complex members replaced by reference markers.
package pancake

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrNotPancake = errors.New("pancake: cannot unflatten non-sequence")

// Pancake is a flattened graph. Node 0 is the root. Complex members of every
// node are reference markers: one-element sequences holding a node index.
type Pancake []any

// Ref builds the reference marker pointing at the node with the given index.
func Ref(index int) []any {
	return []any{index}
}

// RefIndex reads the node index of a reference marker.
func RefIndex(v any) (int, bool) {
	marker, ok := v.([]any)
	if !ok || len(marker) != 1 {
		return 0, false
	}

	switch n := marker[0].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n), true
		}
	}

	return 0, false
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// isComplex reports whether a member has to be moved into its own node.
func isComplex(v any) bool {
	switch v.(type) {
	case map[string]any, []any, []byte:
		return true
	}
	return false
}

type roller struct {
	pancake Pancake
	seen    map[Identity]int
}

// Flatten rolls value into a Pancake. A nil value gives an empty pancake, a
// primitive or byte-blob gives a single node pancake.
func Flatten(value any) Pancake {
	if value == nil {
		return Pancake{}
	}
	if !isContainer(value) {
		return Pancake{value}
	}

	r := &roller{
		pancake: Pancake{value},
		seen:    make(map[Identity]int),
	}
	if id, ok := IdentityOf(value); ok {
		r.seen[id] = 0
	}

	// the pancake grows while we walk it
	for i := 0; i < len(r.pancake); i++ {
		switch node := r.pancake[i].(type) {
		case map[string]any:
			for _, key := range sortedKeys(node) {
				if member := node[key]; isComplex(member) {
					node[key] = Ref(r.indexOf(member))
				}
			}
		case []any:
			for j, member := range node {
				if isComplex(member) {
					node[j] = Ref(r.indexOf(member))
				}
			}
		}
	}

	return r.pancake
}

func (r *roller) indexOf(member any) int {
	id, hasIdentity := IdentityOf(member)
	if hasIdentity {
		if index, found := r.seen[id]; found {
			return index
		}
	}

	r.pancake = append(r.pancake, member)
	index := len(r.pancake) - 1
	if hasIdentity {
		r.seen[id] = index
	}

	return index
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnflattenValue is Unflatten for values of unknown type. Anything that is
// not a sequence fails with ErrNotPancake.
func UnflattenValue(v any, hooks Hooks) (any, error) {
	switch p := v.(type) {
	case Pancake:
		return Unflatten(p, hooks)
	case []any:
		return Unflatten(Pancake(p), hooks)
	}
	return nil, fmt.Errorf("%w: got %T", ErrNotPancake, v)
}

// Unflatten expands a pancake back into a graph, starting at node 0. Nodes
// that are not reachable from node 0 are never constructed. Reference
// markers pointing outside of the pancake are dropped.
//
// hooks may be nil, in which case DefaultHooks is used.
func Unflatten(p Pancake, hooks Hooks) (any, error) {
	if len(p) == 0 {
		return nil, nil
	}
	if !isContainer(p[0]) {
		return p[0], nil
	}
	if hooks == nil {
		hooks = DefaultHooks{}
	}

	b := &baker{
		pancake:     p,
		hooks:       hooks,
		constructed: make(map[int]any),
		links:       make(map[int]pendingLinks),
	}
	return b.bake()
}

type pendingLinks struct {
	named      map[string]int
	positional map[int]int
}

func (pl pendingLinks) len() int {
	return len(pl.named) + len(pl.positional)
}

// targets returns the referenced node indices in a stable order.
func (pl pendingLinks) targets() []int {
	targets := make([]int, 0, pl.len())

	names := make([]string, 0, len(pl.named))
	for name := range pl.named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		targets = append(targets, pl.named[name])
	}

	positions := make([]int, 0, len(pl.positional))
	for pos := range pl.positional {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		targets = append(targets, pl.positional[pos])
	}

	return targets
}

type baker struct {
	pancake     Pancake
	hooks       Hooks
	constructed map[int]any
	links       map[int]pendingLinks
}

func (b *baker) bake() (any, error) {
	queue := []int{0}
	visited := make(map[int]bool)

	for i := 0; i < len(queue); i++ {
		index := queue[i]
		if visited[index] {
			continue
		}
		visited[index] = true

		plain, links := b.split(b.pancake[index])

		obj, err := b.hooks.Construct(plain)
		if err != nil {
			return nil, fmt.Errorf("pancake: constructing node %d: %w", index, err)
		}
		if obj == nil {
			continue
		}
		b.constructed[index] = obj

		if links.len() > 0 {
			b.links[index] = links
			queue = append(queue, links.targets()...)
		}
	}

	// every reachable node exists now, so references can be restored
	indices := make([]int, 0, len(b.links))
	for index := range b.links {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	for _, index := range indices {
		pending := b.links[index]
		resolved := Links{
			Named:      make(map[string]any, len(pending.named)),
			Positional: make(map[int]any, len(pending.positional)),
		}
		for name, target := range pending.named {
			resolved.Named[name] = b.constructed[target]
		}
		for pos, target := range pending.positional {
			resolved.Positional[pos] = b.constructed[target]
		}

		if err := b.hooks.Relink(b.constructed[index], resolved); err != nil {
			return nil, fmt.Errorf("pancake: relinking node %d: %w", index, err)
		}
	}

	return b.constructed[0], nil
}

// split separates a node into its plain members and its reference links.
// The node itself is left untouched.
func (b *baker) split(node any) (any, pendingLinks) {
	var links pendingLinks

	switch n := node.(type) {
	case map[string]any:
		plain := make(map[string]any, len(n))
		links.named = make(map[string]int)
		for key, member := range n {
			if _, isSeq := member.([]any); isSeq {
				if target, ok := b.validRef(member); ok {
					links.named[key] = target
				}
				continue
			}
			plain[key] = member
		}
		return plain, links

	case []any:
		plain := make([]any, len(n))
		links.positional = make(map[int]int)
		for pos, member := range n {
			if _, isSeq := member.([]any); isSeq {
				if target, ok := b.validRef(member); ok {
					links.positional[pos] = target
				}
				continue
			}
			plain[pos] = member
		}
		return plain, links
	}

	// byte-blobs and leaves are taken as-is
	return node, links
}

func (b *baker) validRef(member any) (int, bool) {
	target, ok := RefIndex(member)
	if !ok || target < 0 || target >= len(b.pancake) {
		return 0, false
	}
	return target, true
}
