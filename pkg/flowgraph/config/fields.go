package config

import (
	"reflect"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var unmarshalerType = reflect.TypeOf((*yaml.Unmarshaler)(nil)).Elem()

// unknownFields reports map keys in y that the decode target t does not
// declare. Keys in allow are accepted at the top level only.
func unknownFields(y *yaml.Node, t reflect.Type, source string, allow []string) []error {
	for y != nil && y.Kind == yaml.AliasNode {
		y = y.Alias
	}
	if y == nil || t == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if reflect.PointerTo(t).Implements(unmarshalerType) {
		return nil
	}

	var errs []error
	switch t.Kind() {
	case reflect.Struct:
		if y.Kind != yaml.MappingNode {
			return nil
		}
		fields, open := structFields(t)
		if open {
			return nil
		}
		for i := 0; i+1 < len(y.Content); i += 2 {
			k, v := y.Content[i], y.Content[i+1]
			if k.Value == "<<" {
				continue
			}
			ft, ok := fields[k.Value]
			if !ok {
				if !slices.Contains(allow, k.Value) {
					errs = append(errs, wrap(k, source).Errorf("unknown field %q", k.Value))
				}
				continue
			}
			errs = append(errs, unknownFields(v, ft, source, nil)...)
		}
	case reflect.Slice, reflect.Array:
		if y.Kind != yaml.SequenceNode {
			return nil
		}
		for _, c := range y.Content {
			errs = append(errs, unknownFields(c, t.Elem(), source, nil)...)
		}
	case reflect.Map:
		if y.Kind != yaml.MappingNode {
			return nil
		}
		for i := 1; i < len(y.Content); i += 2 {
			errs = append(errs, unknownFields(y.Content[i], t.Elem(), source, nil)...)
		}
	}
	return errs
}

// structFields maps yaml keys to field types the way yaml.v3 names them.
// open is true when an inline map accepts any key.
func structFields(t reflect.Type) (fields map[string]reflect.Type, open bool) {
	fields = make(map[string]reflect.Type)
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("yaml")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if slices.Contains(strings.Split(opts, ","), "inline") {
			ft := f.Type
			for ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Map {
				return nil, true
			}
			if ft.Kind() == reflect.Struct {
				inner, innerOpen := structFields(ft)
				if innerOpen {
					return nil, true
				}
				for k, v := range inner {
					fields[k] = v
				}
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		fields[name] = f.Type
	}
	return fields, false
}
