package validate

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/devicelab-dev/harness/pkg/core"
)

// Field returns the value at a dotted path such as data.0.attributes.name.
// Numeric segments index arrays. An absent segment is a missing_field
// failure; an explicit JSON null is returned as a value.
func (e *Envelope) Field(path string) (ldvalue.Value, error) {
	root, err := e.Parse()
	if err != nil {
		return ldvalue.Null(), err
	}
	v, ok, at := lookup(root, path)
	if !ok {
		return ldvalue.Null(), e.fail(core.ReasonMissingField, path, fmt.Sprintf("no value at %q", at), nil)
	}
	return v, nil
}

// Require checks that every path is present.
func (e *Envelope) Require(paths ...string) error {
	for _, p := range paths {
		if _, err := e.Field(p); err != nil {
			return err
		}
	}
	return nil
}

// Text returns the string at path.
func (e *Envelope) Text(path string) (string, error) {
	v, err := e.Field(path)
	if err != nil {
		return "", err
	}
	if v.Type() != ldvalue.StringType {
		return "", e.unexpected(path, "a string", v)
	}
	return v.StringValue(), nil
}

// Float returns the number at path.
func (e *Envelope) Float(path string) (float64, error) {
	v, err := e.Field(path)
	if err != nil {
		return 0, err
	}
	if v.Type() != ldvalue.NumberType {
		return 0, e.unexpected(path, "a number", v)
	}
	return v.Float64Value(), nil
}

// Strings returns the array of strings at path.
func (e *Envelope) Strings(path string) ([]string, error) {
	v, err := e.Field(path)
	if err != nil {
		return nil, err
	}
	if v.Type() != ldvalue.ArrayType {
		return nil, e.unexpected(path, "an array", v)
	}
	out := make([]string, v.Count())
	for i := range out {
		item := v.GetByIndex(i)
		if item.Type() != ldvalue.StringType {
			return nil, e.unexpected(path+"."+strconv.Itoa(i), "a string", item)
		}
		out[i] = item.StringValue()
	}
	return out, nil
}

// ExpectCount checks that the array or object at path has n entries.
func (e *Envelope) ExpectCount(path string, n int) error {
	v, err := e.Field(path)
	if err != nil {
		return err
	}
	if v.Type() != ldvalue.ArrayType && v.Type() != ldvalue.ObjectType {
		return e.unexpected(path, "an array or object", v)
	}
	if got := v.Count(); got != n {
		return e.fail(core.ReasonUnexpectedValue, path, fmt.Sprintf("expected %d entries, got %d", n, got), nil)
	}
	return nil
}

// ExpectContains checks that for every value some element of the array at
// path has field equal to it, e.g.
//
//	env.ExpectContains("data", "attributes.name", "Goroka Airport", "Madang Airport")
func (e *Envelope) ExpectContains(path, field string, values ...string) error {
	v, err := e.Field(path)
	if err != nil {
		return err
	}
	if v.Type() != ldvalue.ArrayType {
		return e.unexpected(path, "an array", v)
	}

	found := make(map[string]bool, v.Count())
	for i := 0; i < v.Count(); i++ {
		if item, ok, _ := lookup(v.GetByIndex(i), field); ok && item.Type() == ldvalue.StringType {
			found[item.StringValue()] = true
		}
	}
	var missing []string
	for _, want := range values {
		if !found[want] {
			missing = append(missing, strconv.Quote(want))
		}
	}
	if len(missing) > 0 {
		return e.fail(core.ReasonUnexpectedValue, path+".*."+field,
			fmt.Sprintf("missing %s among %d entries", strings.Join(missing, ", "), v.Count()), nil)
	}
	return nil
}

func (e *Envelope) unexpected(path, want string, got ldvalue.Value) error {
	return e.fail(core.ReasonUnexpectedValue, path, fmt.Sprintf("expected %s, got %s", want, got.Type()), nil)
}

// lookup walks path from root. On failure it returns the prefix that could
// not be resolved.
func lookup(root ldvalue.Value, path string) (ldvalue.Value, bool, string) {
	if path == "" {
		return root, true, ""
	}
	cur := root
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		at := strings.Join(segments[:i+1], ".")
		switch cur.Type() {
		case ldvalue.ObjectType:
			if !hasKey(cur, seg) {
				return ldvalue.Null(), false, at
			}
			cur = cur.GetByKey(seg)
		case ldvalue.ArrayType:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= cur.Count() {
				return ldvalue.Null(), false, at
			}
			cur = cur.GetByIndex(idx)
		default:
			return ldvalue.Null(), false, at
		}
	}
	return cur, true, path
}

func hasKey(obj ldvalue.Value, key string) bool {
	for _, k := range obj.Keys() {
		if k == key {
			return true
		}
	}
	return false
}
