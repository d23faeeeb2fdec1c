package tab

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func encode[T any](v T) (string, error) {
	return sonic.MarshalString(v)
}

func decode[T any](raw string) (T, error) {
	var v T
	err := sonic.UnmarshalString(raw, &v)
	return v, err
}

// isNil reports whether v holds nothing worth storing.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
