// Package listfield provides append/edit/remove operations for the ordered
// string lists of a config entry (regexp, exclude_regexp, label).
//
// Every operation is pure: it returns a new slice and never writes to the
// slice it was given.
package listfield

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/robertmeta/trss-cli/model"
)

// ErrIndexOutOfRange is returned when a position does not exist in the list.
var ErrIndexOutOfRange = errors.New("index out of range")

// Append returns list with value added at the end.
// A blank value is a no-op and returns the list unchanged.
func Append(list []string, value string) []string {
	if strings.TrimSpace(value) == "" {
		return list
	}
	out := make([]string, len(list), len(list)+1)
	copy(out, list)
	return append(out, value)
}

// Edit returns a copy of list with the element at pos replaced by value.
func Edit(list []string, pos int, value string) ([]string, error) {
	if pos < 0 || pos >= len(list) {
		return nil, fmt.Errorf("edit %d of %d: %w", pos, len(list), ErrIndexOutOfRange)
	}
	out := slices.Clone(list)
	out[pos] = value
	return out, nil
}

// Remove returns a copy of list without the element at pos.
// Later elements shift left by one.
func Remove(list []string, pos int) ([]string, error) {
	if pos < 0 || pos >= len(list) {
		return nil, fmt.Errorf("remove %d of %d: %w", pos, len(list), ErrIndexOutOfRange)
	}
	out := make([]string, 0, len(list)-1)
	out = append(out, list[:pos]...)
	return append(out, list[pos+1:]...), nil
}

// Field names one of the list-valued fields of a config entry.
type Field string

const (
	Regexp        Field = "regexp"
	ExcludeRegexp Field = "exclude_regexp"
	Label         Field = "label"
)

// Fields lists every list-valued field in display order.
var Fields = []Field{Regexp, ExcludeRegexp, Label}

// ParseField resolves a wire name to a Field.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if !slices.Contains(Fields, f) {
		return "", fmt.Errorf("unknown list field %q", s)
	}
	return f, nil
}

// Get returns the current list for f.
func (f Field) Get(c model.ConfigEntry) []string {
	switch f {
	case Regexp:
		return c.Regexp
	case ExcludeRegexp:
		return c.ExcludeRegexp
	case Label:
		return c.Label
	}
	return nil
}

// Set returns a copy of c with the list for f replaced.
func (f Field) Set(c model.ConfigEntry, list []string) model.ConfigEntry {
	switch f {
	case Regexp:
		c.Regexp = list
	case ExcludeRegexp:
		c.ExcludeRegexp = list
	case Label:
		c.Label = list
	}
	return c
}

// Append adds value to the field of c.
func (f Field) Append(c model.ConfigEntry, value string) model.ConfigEntry {
	return f.Set(c, Append(f.Get(c), value))
}

// Edit replaces the element at pos in the field of c.
func (f Field) Edit(c model.ConfigEntry, pos int, value string) (model.ConfigEntry, error) {
	list, err := Edit(f.Get(c), pos, value)
	if err != nil {
		return c, fmt.Errorf("%s: %w", f, err)
	}
	return f.Set(c, list), nil
}

// Remove deletes the element at pos in the field of c.
func (f Field) Remove(c model.ConfigEntry, pos int) (model.ConfigEntry, error) {
	list, err := Remove(f.Get(c), pos)
	if err != nil {
		return c, fmt.Errorf("%s: %w", f, err)
	}
	return f.Set(c, list), nil
}

// Pending holds the typed-but-not-yet-appended value for each list field.
// It is kept apart from the entry so unrelated edits do not discard it.
type Pending map[Field]string

// Commit appends the pending value for f to c. The pending value is cleared
// only when something was appended; a blank value leaves c and p unchanged.
func (p Pending) Commit(f Field, c model.ConfigEntry) (model.ConfigEntry, bool) {
	v := p[f]
	if strings.TrimSpace(v) == "" {
		return c, false
	}
	c = f.Append(c, v)
	delete(p, f)
	return c, true
}
