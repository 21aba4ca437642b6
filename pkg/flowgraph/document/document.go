// Package document provides the mutable hierarchical data tree that flows
// through every run.
//
// A Document is an ordered map at its root. Values are nested ordered maps,
// lists, or scalar content (string, int64, float64, bool, []byte, nil).
// Paths address values with dotted or slashed keys ("order.items.0.sku" or
// "order/items/0/sku"); numeric segments index lists.
//
// A Document is safe for concurrent use. Parallel branches of a run share the
// same Document, so writes to the same path from different branches race:
// the last writer wins and the order is unspecified.
package document

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrInvalidPath indicates a path that cannot address a value.
	ErrInvalidPath = errors.New("invalid path")

	// ErrPathConflict indicates a path that traverses through scalar content
	// or indexes past the end of a list.
	ErrPathConflict = errors.New("path conflict")
)

// Document is a mutable, ordered, hierarchical key-path tree.
type Document struct {
	mu   sync.RWMutex
	root *object
}

// New returns an empty document.
func New() *Document {
	return &Document{root: newObject()}
}

// FromMap builds a document from a map. Map keys are inserted in sorted order
// because Go maps carry no order of their own.
func FromMap(m map[string]any) *Document {
	d := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.root.set(k, normalize(m[k]))
	}
	return d
}

// Put stores value at path, creating intermediate maps as needed.
// Index len(list) appends to a list. An empty path replaces the root and
// requires a map value.
func (d *Document) Put(path string, value any) error {
	segs := splitPath(path)
	v := normalize(value)

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(segs) == 0 {
		obj, ok := v.(*object)
		if !ok {
			return fmt.Errorf("%w: root must be a map, got %T", ErrInvalidPath, value)
		}
		d.root = obj
		return nil
	}
	_, err := setIn(d.root, segs, v)
	return err
}

// Get returns a copy of the value at path.
// Maps are returned as map[string]any and lists as []any.
func (d *Document) Get(path string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := getIn(d.root, splitPath(path))
	if !ok {
		return nil, false
	}
	return export(v), true
}

// Has reports whether a value exists at path.
func (d *Document) Has(path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := getIn(d.root, splitPath(path))
	return ok
}

// GetString returns the string at path. Byte content is converted.
func (d *Document) GetString(path string) (string, bool) {
	v, ok := d.raw(path)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// GetInt returns the integer at path. Integral floats and numeric strings
// are converted.
func (d *Document) GetInt(path string) (int64, bool) {
	v, ok := d.raw(path)
	if !ok {
		return 0, false
	}
	return AsInt(v)
}

// GetFloat returns the number at path as a float64. Numeric strings are
// converted.
func (d *Document) GetFloat(path string) (float64, bool) {
	v, ok := d.raw(path)
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

// GetBool returns the boolean at path.
func (d *Document) GetBool(path string) (bool, bool) {
	v, ok := d.raw(path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Delete removes the value at path. Reports whether anything was removed.
func (d *Document) Delete(path string) bool {
	segs := splitPath(path)
	if len(segs) == 0 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	parent, ok := getIn(d.root, segs[:len(segs)-1])
	if !ok {
		return false
	}
	last := segs[len(segs)-1]
	switch p := parent.(type) {
	case *object:
		return p.remove(last)
	case []any:
		// Removing from a list changes its length, so the parent must be rewritten.
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(p) {
			return false
		}
		shrunk := append(append(make([]any, 0, len(p)-1), p[:idx]...), p[idx+1:]...)
		_, err = setIn(d.root, segs[:len(segs)-1], shrunk)
		return err == nil
	}
	return false
}

// Copy copies the value at from to to. Copies are deep.
func (d *Document) Copy(from, to string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := getIn(d.root, splitPath(from))
	if !ok {
		return fmt.Errorf("%w: nothing at %q", ErrInvalidPath, from)
	}
	segs := splitPath(to)
	if len(segs) == 0 {
		obj, ok := v.(*object)
		if !ok {
			return fmt.Errorf("%w: root must be a map", ErrInvalidPath)
		}
		d.root = obj.clone()
		return nil
	}
	_, err := setIn(d.root, segs, deepCopy(v))
	return err
}

// Keys returns the keys of the map at path in insertion order.
// The empty path names the root.
func (d *Document) Keys(path string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := getIn(d.root, splitPath(path))
	if !ok {
		return nil
	}
	obj, ok := v.(*object)
	if !ok {
		return nil
	}
	return append([]string(nil), obj.keys...)
}

// Len returns the number of top-level keys.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.root.keys)
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &Document{root: d.root.clone()}
}

// ToMap returns a deep copy of the document as plain Go maps and slices.
func (d *Document) ToMap() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return export(d.root).(map[string]any)
}

// String renders the document as JSON.
func (d *Document) String() string {
	b, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("document(%v)", err)
	}
	return string(b)
}

func (d *Document) raw(path string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return getIn(d.root, splitPath(path))
}

// AsInt converts numeric content to int64.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// AsFloat converts numeric content to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '.' || r == '/' })
}

func setIn(cur any, segs []string, v any) (any, error) {
	if len(segs) == 0 {
		return v, nil
	}
	seg := segs[0]
	switch c := cur.(type) {
	case nil:
		obj := newObject()
		child, err := setIn(nil, segs[1:], v)
		if err != nil {
			return nil, err
		}
		obj.set(seg, child)
		return obj, nil
	case *object:
		child, err := setIn(c.values[seg], segs[1:], v)
		if err != nil {
			return nil, err
		}
		c.set(seg, child)
		return c, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx > len(c) {
			return nil, fmt.Errorf("%w: index %q out of range for list of %d", ErrPathConflict, seg, len(c))
		}
		if idx == len(c) {
			c = append(c, nil)
		}
		child, err := setIn(c[idx], segs[1:], v)
		if err != nil {
			return nil, err
		}
		c[idx] = child
		return c, nil
	default:
		return nil, fmt.Errorf("%w: cannot descend into %T at %q", ErrPathConflict, cur, seg)
	}
}

func getIn(cur any, segs []string) (any, bool) {
	for _, seg := range segs {
		switch c := cur.(type) {
		case *object:
			v, ok := c.values[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// unsigned stores u as int64, or as float64 when it does not fit.
func unsigned(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// normalize converts Go values into document content.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return unsigned(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return unsigned(x)
	case float32:
		return float64(x)
	case []byte:
		return append([]byte(nil), x...)
	case *Document:
		x.mu.RLock()
		defer x.mu.RUnlock()
		return x.root.clone()
	case *object:
		return x.clone()
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := newObject()
		for _, k := range keys {
			obj.set(k, normalize(x[k]))
		}
		return obj
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return normalize(m)
	}
	return v
}

func export(v any) any {
	switch x := v.(type) {
	case *object:
		m := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			m[k] = export(x.values[k])
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = export(e)
		}
		return out
	case []byte:
		return append([]byte(nil), x...)
	}
	return v
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case *object:
		return x.clone()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	case []byte:
		return append([]byte(nil), x...)
	}
	return v
}
