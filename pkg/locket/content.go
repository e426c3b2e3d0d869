package locket

import (
	"fmt"

	"github.com/i5heu/ouroboros-locket/pkg/serializer"
)

type WriteOptions struct {
	UpdateOnly bool // only write into fields that already exist
}

type ReadOptions struct {
	Constructors map[string]serializer.Constructor
	Relinkers    map[string]serializer.Relinker
}

// WriteContent serializes value into the named field. With UpdateOnly an
// absent field is left absent.
func (l *Locket) WriteContent(name string, value any, opts WriteOptions) error {
	content, err := serializer.Serialize(value)
	if err != nil {
		return fmt.Errorf("locket: writing field %q: %w", name, err)
	}

	if opts.UpdateOnly {
		l.UpdateSerializedContent(name, content)
		return nil
	}
	l.SetSerializedContent(name, content)
	return nil
}

// ReadContent deserializes the named field. An absent field reads as nil.
func (l *Locket) ReadContent(name string, opts ReadOptions) (any, error) {
	content := l.GetSerializedContent(name)
	if content == nil {
		return nil, nil
	}

	value, err := serializer.Deserialize(content, opts.Constructors, opts.Relinkers)
	if err != nil {
		return nil, fmt.Errorf("locket: reading field %q: %w", name, err)
	}
	return value, nil
}
