/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package beans

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationClass = reflect.TypeOf(time.Millisecond)
	timeClass     = reflect.TypeOf(time.Time{})
	fileModeClass = reflect.TypeOf(os.FileMode(0777))
)

/**
Default conversion service. Assignable values pass through, strings are
parsed into the target kind, resolved collections are rebuilt element-wise
into the declared slice or map type. Rebuilding also gives every creation
its own collection instance, resolved elements are never aliased between
two beans.
*/

type defaultTypeConverter struct {

	/**
	Layout used for time.Time parsing.
	*/
	layout string
}

func NewTypeConverter() TypeConverter {
	return &defaultTypeConverter{layout: time.RFC3339}
}

func (t *defaultTypeConverter) Convert(value interface{}, targetType reflect.Type) (interface{}, error) {
	if targetType == nil {
		return value, nil
	}
	out, err := t.convertValue(value, targetType)
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func (t *defaultTypeConverter) convertValue(value interface{}, targetType reflect.Type) (reflect.Value, error) {

	if value == nil {
		switch targetType.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
			return reflect.Zero(targetType), nil
		default:
			return reflect.Value{}, errors.Errorf("null value is not assignable to type '%v'", targetType)
		}
	}

	actual := reflect.ValueOf(value)
	if actual.Type().AssignableTo(targetType) {
		return actual, nil
	}

	if str, ok := value.(string); ok {
		return t.convertString(str, targetType)
	}

	switch targetType.Kind() {

	case reflect.Slice:
		if actual.Kind() == reflect.Slice {
			slice := reflect.MakeSlice(targetType, 0, actual.Len())
			for i := 0; i < actual.Len(); i++ {
				el, err := t.convertValue(actual.Index(i).Interface(), targetType.Elem())
				if err != nil {
					return reflect.Value{}, errors.Errorf("element %d conversion to '%v' failed, %v", i, targetType.Elem(), err)
				}
				slice = reflect.Append(slice, el)
			}
			return slice, nil
		}

	case reflect.Map:
		if actual.Kind() == reflect.Map {
			table := reflect.MakeMapWithSize(targetType, actual.Len())
			iter := actual.MapRange()
			for iter.Next() {
				key, err := t.convertValue(iter.Key().Interface(), targetType.Key())
				if err != nil {
					return reflect.Value{}, errors.Errorf("map key '%v' conversion to '%v' failed, %v", iter.Key(), targetType.Key(), err)
				}
				el, err := t.convertValue(iter.Value().Interface(), targetType.Elem())
				if err != nil {
					return reflect.Value{}, errors.Errorf("map value of key '%v' conversion to '%v' failed, %v", iter.Key(), targetType.Elem(), err)
				}
				table.SetMapIndex(key, el)
			}
			return table, nil
		}
	}

	if actual.Type().ConvertibleTo(targetType) && isConvertibleKind(actual.Kind()) && isConvertibleKind(targetType.Kind()) {
		return actual.Convert(targetType), nil
	}

	return reflect.Value{}, errors.Errorf("value of type '%v' is not convertible to type '%v'", actual.Type(), targetType)
}

func (t *defaultTypeConverter) convertString(s string, targetType reflect.Type) (val reflect.Value, err error) {
	var v interface{}

	switch {

	case isArray(targetType):
		parts := trimSplit(s, ";")
		slice := reflect.MakeSlice(targetType, 0, len(parts))
		for _, s := range parts {
			val, err := t.convertString(s, targetType.Elem())
			if err != nil {
				return slice, err
			}
			slice = reflect.Append(slice, val)
		}
		return slice, err

	case isDuration(targetType):
		v, err = time.ParseDuration(s)

	case isTime(targetType):
		v, err = time.Parse(t.layout, s)

	case isFileMode(targetType):
		v, err = parseFileMode(s), nil

	case isBool(targetType):
		v, err = parseBool(s)

	case isString(targetType):
		v, err = s, nil

	case isFloat(targetType):
		v, err = strconv.ParseFloat(s, 64)

	case isInt(targetType):
		v, err = strconv.ParseInt(s, 10, 64)

	case isUint(targetType):
		v, err = strconv.ParseUint(s, 10, 64)

	default:
		return reflect.Zero(targetType), fmt.Errorf("unsupported type %s", targetType)
	}

	if err != nil {
		return reflect.Zero(targetType), err
	}

	return reflect.ValueOf(v).Convert(targetType), nil
}

func isBool(t reflect.Type) bool {
	return t.Kind() == reflect.Bool
}

func isString(t reflect.Type) bool {
	return t.Kind() == reflect.String
}

func isFloat(t reflect.Type) bool {
	return t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64
}

func isInt(t reflect.Type) bool {
	return t.Kind() == reflect.Int || t.Kind() == reflect.Int8 || t.Kind() == reflect.Int16 || t.Kind() == reflect.Int32 || t.Kind() == reflect.Int64
}

func isUint(t reflect.Type) bool {
	return t.Kind() == reflect.Uint || t.Kind() == reflect.Uint8 || t.Kind() == reflect.Uint16 || t.Kind() == reflect.Uint32 || t.Kind() == reflect.Uint64
}

func isDuration(t reflect.Type) bool {
	return t == durationClass
}

func isTime(t reflect.Type) bool {
	return t == timeClass
}

func isFileMode(t reflect.Type) bool {
	return t == fileModeClass
}

func isArray(t reflect.Type) bool {
	return (t.Kind() == reflect.Array || t.Kind() == reflect.Slice) && t.Elem().Kind() != reflect.Interface
}

func trimSplit(s string, sep string) []string {
	var a []string
	for _, v := range strings.Split(s, sep) {
		if v = strings.TrimSpace(v); v != "" {
			a = append(a, v)
		}
	}
	return a
}

func parseBool(str string) (bool, error) {
	switch str {
	case "1", "t", "T", "true", "TRUE", "True", "on", "ON", "On":
		return true, nil
	case "0", "f", "F", "false", "FALSE", "False", "off", "OFF", "Off":
		return false, nil
	}
	return false, errors.Errorf("invalid syntax '%s'", str)
}

/**
Parses only os.Unix file mode with 0777 mask
*/
func parseFileMode(s string) os.FileMode {

	var m uint32

	const rwx = "rwxrwxrwx"
	off := len(s) - len(rwx)
	if off < 0 {
		buf := []byte("---------")
		copy(buf[-off:], s)
		s = string(buf)
	} else {
		s = s[off:]
	}

	for i, c := range rwx {
		if byte(c) == s[i] {
			m |= 1 << uint(9-1-i)
		}
	}

	return os.FileMode(m)
}
