// Package locket implements the field/history data model: a locket is a set
// of named fields, every field keeps its current serialized content plus an
// append-only history of content hashes.
//
// A field with an empty history counts as absent for every observing
// operation.
package locket

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/i5heu/ouroboros-locket/pkg/pancake"
)

// Hash is the SHA-512 content hash of a serialized field content.
type Hash [64]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash reads the hex form produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("locket: parsing hash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("locket: hash has %d bytes, expected %d", len(raw), len(h))
	}
	copy(h[:], raw)
	return h, nil
}

type HistoryEntry struct {
	Hash Hash
	Date time.Time
}

// Field holds the current content and the write history of one value. The
// hash of the last history entry is always the hash of SerializedContent.
type Field struct {
	SerializedContent pancake.Pancake
	History           []HistoryEntry
}

type Locket struct {
	Fields map[string]*Field
}

func CreateNew() *Locket {
	return &Locket{Fields: make(map[string]*Field)}
}

func NewField() *Field {
	return &Field{
		SerializedContent: pancake.Pancake{},
		History:           []HistoryEntry{},
	}
}

// NewHistoryEntry hashes content and stamps it with the current time.
func NewHistoryEntry(content pancake.Pancake) HistoryEntry {
	return HistoryEntry{
		Hash: HashContent(content),
		Date: time.Now().UTC(),
	}
}

// IsEmpty reports whether the field has never been written.
func (f *Field) IsEmpty() bool {
	return f == nil || len(f.History) == 0
}

// Latest returns the most recent history entry.
func (f *Field) Latest() (HistoryEntry, bool) {
	if f.IsEmpty() {
		return HistoryEntry{}, false
	}
	return f.History[len(f.History)-1], true
}

// UpdateSerializedContent replaces the content and appends its history
// entry. Nothing happens on a nil field.
func (f *Field) UpdateSerializedContent(content pancake.Pancake) {
	if f == nil {
		return
	}
	f.SerializedContent = content
	f.History = append(f.History, NewHistoryEntry(content))
}

// Clone returns a deep copy sharing nothing with f.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	history := make([]HistoryEntry, len(f.History))
	copy(history, f.History)

	content := pancake.Clone(f.SerializedContent)
	if content == nil {
		content = pancake.Pancake{}
	}

	return &Field{
		SerializedContent: content,
		History:           history,
	}
}

func (l *Locket) HasField(name string) bool {
	return !l.Fields[name].IsEmpty()
}

// AddField makes sure an entry for name exists and returns it. An existing
// non-empty field is left untouched.
func (l *Locket) AddField(name string) *Field {
	if l.Fields == nil {
		l.Fields = make(map[string]*Field)
	}
	if !l.HasField(name) {
		l.Fields[name] = NewField()
	}
	return l.Fields[name]
}

// GetField returns nil for absent and empty fields.
func (l *Locket) GetField(name string) *Field {
	if !l.HasField(name) {
		return nil
	}
	return l.Fields[name]
}

// GetAllFields returns all non-empty fields by name.
func (l *Locket) GetAllFields() map[string]*Field {
	fields := make(map[string]*Field, len(l.Fields))
	for name := range l.Fields {
		if field := l.GetField(name); field != nil {
			fields[name] = field
		}
	}
	return fields
}

// GetSerializedContent returns nil if the field is absent.
func (l *Locket) GetSerializedContent(name string) pancake.Pancake {
	field := l.GetField(name)
	if field == nil {
		return nil
	}
	return field.SerializedContent
}

// SetSerializedContent writes content into the field, creating it first if
// needed.
func (l *Locket) SetSerializedContent(name string, content pancake.Pancake) {
	l.AddField(name).UpdateSerializedContent(content)
}

// UpdateSerializedContent writes content into an existing field. It reports
// false and does nothing if the field is absent.
func (l *Locket) UpdateSerializedContent(name string, content pancake.Pancake) bool {
	field := l.GetField(name)
	if field == nil {
		return false
	}
	field.UpdateSerializedContent(content)
	return true
}

// Clone deep copies every field, empty ones included.
func (l *Locket) Clone() *Locket {
	out := CreateNew()
	for name, field := range l.Fields {
		if field != nil {
			out.Fields[name] = field.Clone()
		}
	}
	return out
}
