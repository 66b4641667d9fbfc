package mastodon

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ValidationError names the first field that broke an entity.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

type fieldRules struct {
	optional   bool
	nullable   bool
	skippable  bool
	allowEmpty bool
}

func (r fieldRules) mayBeMissing() bool {
	return r.optional || r.nullable
}

func parseRules(tag string) fieldRules {
	var r fieldRules
	for _, opt := range strings.Split(tag, ",") {
		switch strings.TrimSpace(opt) {
		case "optional":
			r.optional = true
		case "nullable":
			r.nullable = true
		case "skippable":
			r.skippable = true
		case "allowempty":
			r.allowEmpty = true
		}
	}
	return r
}

var timeType = reflect.TypeOf(time.Time{})

// Validate checks entity, which must be a pointer to an entity struct,
// against its field rules. Required nil lists are replaced by empty lists so
// they serialize as []. Invalid items of skippable lists are removed and
// reported to onSkip when it is non-nil.
func Validate(entity any, onSkip func(*ValidationError)) error {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return &ValidationError{Reason: "entity is missing"}
	}
	if v.Elem().Kind() != reflect.Struct {
		return &ValidationError{Reason: fmt.Sprintf("cannot validate %s", v.Elem().Type())}
	}
	return validateStruct(v.Elem(), "", onSkip)
}

func validateStruct(v reflect.Value, path string, onSkip func(*ValidationError)) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := jsonName(f)
		if name == "-" {
			continue
		}
		rules := parseRules(f.Tag.Get("mastodon"))
		if err := validateField(v.Field(i), joinPath(path, name), rules, onSkip); err != nil {
			return err
		}
	}
	return nil
}

func validateField(fv reflect.Value, path string, r fieldRules, onSkip func(*ValidationError)) error {
	switch fv.Kind() {
	case reflect.Pointer:
		if fv.IsNil() {
			if r.mayBeMissing() {
				return nil
			}
			return missing(path)
		}
		if elem := fv.Elem(); elem.Kind() == reflect.Struct && elem.Type() != timeType {
			return validateStruct(elem, path, onSkip)
		}
	case reflect.String:
		if fv.Len() == 0 && !r.mayBeMissing() && !r.allowEmpty {
			return missing(path)
		}
	case reflect.Struct:
		if fv.Type() == timeType {
			if fv.Interface().(time.Time).IsZero() && !r.mayBeMissing() && !r.allowEmpty {
				return missing(path)
			}
			return nil
		}
		return validateStruct(fv, path, onSkip)
	case reflect.Map:
		if fv.IsNil() && !r.mayBeMissing() {
			return missing(path)
		}
	case reflect.Slice:
		return validateSlice(fv, path, r, onSkip)
	}
	return nil
}

func validateSlice(fv reflect.Value, path string, r fieldRules, onSkip func(*ValidationError)) error {
	if fv.IsNil() {
		if !r.mayBeMissing() && fv.CanSet() {
			fv.Set(reflect.MakeSlice(fv.Type(), 0, 0))
		}
		return nil
	}
	elemType := fv.Type().Elem()
	isEntity := elemType.Kind() == reflect.Struct ||
		(elemType.Kind() == reflect.Pointer && elemType.Elem().Kind() == reflect.Struct)
	if !isEntity {
		return nil
	}

	kept := reflect.MakeSlice(fv.Type(), 0, fv.Len())
	for i := 0; i < fv.Len(); i++ {
		item := fv.Index(i)
		var err error
		if item.Kind() == reflect.Pointer {
			if item.IsNil() {
				err = missing(joinPath(path, strconv.Itoa(i)))
			} else {
				err = validateStruct(item.Elem(), joinPath(path, strconv.Itoa(i)), onSkip)
			}
		} else {
			err = validateStruct(item, joinPath(path, strconv.Itoa(i)), onSkip)
		}
		if err != nil {
			if !r.skippable {
				return err
			}
			if onSkip != nil {
				if verr, ok := err.(*ValidationError); ok {
					onSkip(verr)
				}
			}
			continue
		}
		kept = reflect.Append(kept, item)
	}
	if kept.Len() != fv.Len() && fv.CanSet() {
		fv.Set(kept)
	}
	return nil
}

func missing(path string) error {
	return &ValidationError{Path: path, Reason: "required field is missing"}
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
