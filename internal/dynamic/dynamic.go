// Package dynamic gives generated templates member access on models whose
// type has no name, such as values of anonymous struct types.
package dynamic

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// MemberNotFoundError reports a member lookup that matched nothing.
type MemberNotFoundError struct {
	Type   string
	Member string
}

func (e *MemberNotFoundError) Error() string {
	return fmt.Sprintf("type %s has no member %q", e.Type, e.Member)
}

// Object wraps a model value behind a lookup-by-name facade.
type Object struct {
	v any
}

// Wrap returns v wrapped in an Object. Objects are returned unchanged.
func Wrap(v any) *Object {
	if obj, ok := v.(*Object); ok {
		return obj
	}
	return &Object{v: v}
}

// Unwrap returns the wrapped value.
func (o *Object) Unwrap() any {
	return o.v
}

// String formats the wrapped value.
func (o *Object) String() string {
	return fmt.Sprint(o.v)
}

// Get looks name up on the wrapped value: exported struct fields first, then
// methods without arguments, then entries of string-keyed maps. Values of
// anonymous types are wrapped on the way out. A method that fails counts as
// not found; Member reports its error.
func (o *Object) Get(name string) (any, bool) {
	v, ok, err := o.lookup(name)
	if err != nil {
		return nil, false
	}
	return v, ok
}

func (o *Object) lookup(name string) (any, bool, error) {
	if o == nil || o.v == nil {
		return nil, false, nil
	}
	rv := reflect.ValueOf(o.v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, false, nil
	}
	iv := reflect.Indirect(rv)

	if iv.Kind() == reflect.Struct {
		if f, ok := iv.Type().FieldByName(name); ok && f.IsExported() {
			fv, err := iv.FieldByIndexErr(f.Index)
			if err != nil {
				// embedded nil pointer on the path
				return nil, true, nil
			}
			return wrapValue(fv.Interface()), true, nil
		}
	}

	if m := rv.MethodByName(name); m.IsValid() {
		if v, ok, err := callMethod(m); ok || err != nil {
			return wrapValue(v), ok, err
		}
	}

	if iv.Kind() == reflect.Map && iv.Type().Key().Kind() == reflect.String {
		mv := iv.MapIndex(reflect.ValueOf(name).Convert(iv.Type().Key()))
		if mv.IsValid() {
			return wrapValue(mv.Interface()), true, nil
		}
	}
	return nil, false, nil
}

// TypeName describes the wrapped value's type for error messages.
func (o *Object) TypeName() string {
	if o == nil || o.v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(o.v).String()
}

// Member is Get with a MemberNotFoundError for missing names. v is wrapped
// first when it is not an Object. The error of a failing method is returned
// as is, wrapped with the member name.
func Member(v any, name string) (any, error) {
	obj := Wrap(v)
	val, ok, err := obj.lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", obj.TypeName(), name, err)
	}
	if !ok {
		return nil, &MemberNotFoundError{Type: obj.TypeName(), Member: name}
	}
	return val, nil
}

// IsAnonymous reports whether t cannot be referred to by name: an unnamed
// struct type or a pointer to one.
func IsAnonymous(t reflect.Type) bool {
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t.Name() == ""
}

func wrapValue(v any) any {
	if v == nil {
		return nil
	}
	if IsAnonymous(reflect.TypeOf(v)) {
		return &Object{v: v}
	}
	return v
}

// callMethod invokes m when it takes no arguments and returns either one
// value or a value and an error. ok is false for other signatures and for
// calls that fail.
func callMethod(m reflect.Value) (v any, ok bool, err error) {
	mt := m.Type()
	if mt.NumIn() != 0 {
		return nil, false, nil
	}
	switch mt.NumOut() {
	case 1:
		return m.Call(nil)[0].Interface(), true, nil
	case 2:
		if !mt.Out(1).Implements(errorType) {
			return nil, false, nil
		}
		out := m.Call(nil)
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, false, err
		}
		return out[0].Interface(), true, nil
	}
	return nil, false, nil
}
