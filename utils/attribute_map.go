package utils

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a loosely typed set of attributes, usually decoded from JSON.
type AttributeMap map[string]interface{}

// Has returns whether the given attribute exists.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// String returns a string attribute and whether it was present as a string.
func (am AttributeMap) String(name string) (string, bool) {
	v, ok := am[name].(string)
	return v, ok
}

// Bool returns a bool attribute or the default if it is missing or not a bool.
func (am AttributeMap) Bool(name string, def bool) bool {
	v, ok := am[name].(bool)
	if !ok {
		return def
	}
	return v
}

// TransformAttributeMap decodes attributes into T using `json` tags. Unused keys are returned so
// callers can report them.
func TransformAttributeMap[T any](attributes AttributeMap) (T, []string, error) {
	var out T

	var forResult interface{}

	toT := reflect.TypeOf(out)
	if toT == nil {
		// nothing to transform
		return out, nil, nil
	}
	if toT.Kind() == reflect.Ptr {
		// needs to be allocated then
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, nil, errors.Errorf("failed to allocate default config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:  "json",
		Result:   forResult,
		Metadata: &md,
	})
	if err != nil {
		return out, nil, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, nil, err
	}
	return out, md.Unused, nil
}
