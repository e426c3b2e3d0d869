package locket

import (
	"errors"
	"fmt"
	"time"

	"github.com/i5heu/ouroboros-locket/pkg/pancake"
)

var ErrInvalidDocument = errors.New("locket: invalid document")

// Codec converts plain documents (maps, sequences, byte-blobs, dates and
// leaves) to bytes and back. binaryCoder.Coder is the default
// implementation.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

const (
	docFields            = "fields"
	docHistory           = "history"
	docSerializedContent = "serializedContent"
	docHash              = "hash"
	docDate              = "date"
)

// Encode writes the whole locket through codec.
func Encode(l *Locket, codec Codec) ([]byte, error) {
	b, err := codec.Encode(ToDocument(l))
	if err != nil {
		return nil, fmt.Errorf("locket: encoding: %w", err)
	}
	return b, nil
}

// Decode reads a locket written by Encode. Field contents are sanitized, so
// blobs the codec wrapped are byte-blobs again.
func Decode(b []byte, codec Codec) (*Locket, error) {
	doc, err := codec.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("locket: decoding: %w", err)
	}
	return FromDocument(doc)
}

// ToDocument converts l into its plain document form:
//
//	{"fields": {name: {"history": [{"hash": hex, "date": time}], "serializedContent": [...]}}}
func ToDocument(l *Locket) map[string]any {
	fields := make(map[string]any, len(l.Fields))
	for name, field := range l.Fields {
		if field == nil {
			continue
		}
		history := make([]any, len(field.History))
		for i, entry := range field.History {
			history[i] = map[string]any{
				docHash: entry.Hash.String(),
				docDate: entry.Date,
			}
		}
		content := []any(field.SerializedContent)
		if content == nil {
			content = []any{}
		}
		fields[name] = map[string]any{
			docHistory:           history,
			docSerializedContent: content,
		}
	}
	return map[string]any{docFields: fields}
}

// FromDocument is the inverse of ToDocument.
func FromDocument(doc any) (*Locket, error) {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: root is %T", ErrInvalidDocument, doc)
	}
	fields, ok := root[docFields].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing fields", ErrInvalidDocument)
	}

	l := CreateNew()
	for name, raw := range fields {
		field, err := fieldFromDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		l.Fields[name] = field
	}
	return l, nil
}

func fieldFromDocument(raw any) (*Field, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: field is %T", ErrInvalidDocument, raw)
	}

	content, ok := m[docSerializedContent].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: serializedContent is %T", ErrInvalidDocument, m[docSerializedContent])
	}
	rawHistory, ok := m[docHistory].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: history is %T", ErrInvalidDocument, m[docHistory])
	}

	history := make([]HistoryEntry, len(rawHistory))
	for i, rawEntry := range rawHistory {
		entry, err := historyEntryFromDocument(rawEntry)
		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		history[i] = entry
	}

	return &Field{
		SerializedContent: pancake.Sanitize(pancake.Pancake(content)),
		History:           history,
	}, nil
}

func historyEntryFromDocument(raw any) (HistoryEntry, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return HistoryEntry{}, fmt.Errorf("%w: entry is %T", ErrInvalidDocument, raw)
	}
	hexHash, ok := m[docHash].(string)
	if !ok {
		return HistoryEntry{}, fmt.Errorf("%w: hash is %T", ErrInvalidDocument, m[docHash])
	}
	hash, err := ParseHash(hexHash)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	date, ok := m[docDate].(time.Time)
	if !ok {
		return HistoryEntry{}, fmt.Errorf("%w: date is %T", ErrInvalidDocument, m[docDate])
	}
	return HistoryEntry{Hash: hash, Date: date.UTC()}, nil
}
