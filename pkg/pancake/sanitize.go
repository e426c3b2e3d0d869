package pancake

// BlobWrapper is implemented by the blob-indicator shapes binary document
// codecs decode byte-blobs into.
type BlobWrapper interface {
	BlobBytes() []byte
}

// Sanitize repairs a pancake that went through a binary document codec:
// wrapped blobs become raw byte-blobs again and numeric reference markers
// become int markers. The pancake is modified in place and returned.
func Sanitize(p Pancake) Pancake {
	for i, node := range p {
		p[i] = sanitizeNode(node)
	}
	return p
}

func sanitizeNode(node any) any {
	switch n := node.(type) {
	case BlobWrapper:
		return n.BlobBytes()
	case Pancake:
		return sanitizeNode([]any(n))
	case map[string]any:
		for key, member := range n {
			n[key] = sanitizeMember(member)
		}
	case []any:
		for pos, member := range n {
			n[pos] = sanitizeMember(member)
		}
	}
	return node
}

func sanitizeMember(member any) any {
	switch m := member.(type) {
	case BlobWrapper:
		return m.BlobBytes()
	case []any:
		if index, ok := RefIndex(m); ok {
			return Ref(index)
		}
	}
	return member
}

// Clone deep copies a pancake. Leaves that are not maps, sequences or
// byte-blobs are shared.
func Clone(p Pancake) Pancake {
	if p == nil {
		return nil
	}
	out := make(Pancake, len(p))
	for i, node := range p {
		out[i] = cloneValue(node)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, member := range val {
			out[k] = cloneValue(member)
		}
		return out
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, member := range val {
			out[i] = cloneValue(member)
		}
		return out
	case []byte:
		if val == nil {
			return val
		}
		out := make([]byte, len(val))
		copy(out, val)
		return out
	}
	return v
}
