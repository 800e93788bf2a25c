package sim

import (
	"fmt"
	"strings"
)

// WildcardName is the pattern symbol matching any site content. It is never
// a concrete type and cannot appear in a type table.
const WildcardName = "*"

// TypeID is the interned integer form of a type label.
type TypeID int

// TypeTable interns type labels. It is immutable after construction.
type TypeTable struct {
	names []string
	index map[string]TypeID
}

// NewTypeTable interns names in the given order.
func NewTypeTable(names []string) (*TypeTable, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: type table needs at least one type", ErrInvalidModel)
	}
	t := &TypeTable{
		names: make([]string, 0, len(names)),
		index: make(map[string]TypeID, len(names)),
	}
	for _, name := range names {
		switch {
		case strings.TrimSpace(name) == "":
			return nil, fmt.Errorf("%w: empty type name", ErrInvalidModel)
		case name == WildcardName:
			return nil, fmt.Errorf("%w: %q is reserved for wildcards", ErrInvalidModel, WildcardName)
		}
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate type %q", ErrInvalidModel, name)
		}
		t.index[name] = TypeID(len(t.names))
		t.names = append(t.names, name)
	}
	return t, nil
}

// Index resolves a label to its TypeID.
func (t *TypeTable) Index(name string) (TypeID, error) {
	id, ok := t.index[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownType, name)
	}
	return id, nil
}

// Name returns the label of id.
func (t *TypeTable) Name(id TypeID) string { return t.names[id] }

// Len returns the number of interned types.
func (t *TypeTable) Len() int { return len(t.names) }

// Names returns a copy of the labels in TypeID order.
func (t *TypeTable) Names() []string {
	return append([]string(nil), t.names...)
}

// TypeCount pairs a type label with a count inside a bucket.
type TypeCount struct {
	Type  string
	Count int
}

// Bucket is a multiset of types at one site.
type Bucket []TypeCount

// IsWildcard reports whether b is the single-entry wildcard bucket.
func (b Bucket) IsWildcard() bool {
	return len(b) == 1 && b[0].Type == WildcardName
}
