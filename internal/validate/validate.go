// Package validate turns request payload checks into classified pipeline
// errors: JSON Schema failures become apierr.KindSchema, struct rule failures
// become apierr.KindValidation.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tjfontaine/roots-api/internal/apierr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so messages match the payload the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	return v
}

// Struct checks the `validate` tags of v. Rule failures are returned as an
// apierr.KindValidation error; misuse (v is not a struct) is returned as is.
//
// The validator stops at the first failing tag of a field. Struct then
// re-runs the field's remaining standalone tags (see rerunnable) against the
// same value so that every failed constraint is reported, not only the first.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	violations := Violations(verrs)
	root := reflect.TypeOf(v)
	seen := make(map[string]bool, len(violations))
	i := 0
	for _, fe := range verrs {
		if seen[fe.Namespace()] {
			continue
		}
		seen[fe.Namespace()] = true
		if constraints := allFailures(root, fe); len(constraints) > 0 {
			violations[i].Constraints = constraints
		}
		i++
	}
	return apierr.Validation(violations...)
}

// Violations groups field errors by field, keeping the order in which the
// validator reported them. Each violation carries only the constraints the
// validator itself reported.
func Violations(verrs validator.ValidationErrors) []apierr.Violation {
	index := make(map[string]int)
	out := make([]apierr.Violation, 0, len(verrs))

	for _, fe := range verrs {
		ns := fe.Namespace()
		i, ok := index[ns]
		if !ok {
			i = len(out)
			index[ns] = i
			out = append(out, apierr.Violation{Field: fieldPath(fe)})
		}
		out[i].Constraints = append(out[i].Constraints, apierr.Constraint{
			Name:    fe.Tag(),
			Message: Message(fe),
		})
	}
	return out
}

// rerunnable lists tags that depend only on the field value and can be
// checked on their own with Var.
var rerunnable = map[string]bool{
	"required": true,
	"email":    true,
	"url":      true,
	"http_url": true,
	"uuid":     true,
	"uuid4":    true,
	"oneof":    true,
	"min":      true,
	"max":      true,
	"len":      true,
	"gt":       true,
	"gte":      true,
	"lt":       true,
	"lte":      true,
	"alphanum": true,
}

// allFailures evaluates every tag declared on the field behind fe, in
// declaration order, and returns a constraint for each one the value fails.
// It returns nil when the field's tag cannot be resolved or uses tags that
// only make sense in the context of the whole struct.
func allFailures(root reflect.Type, fe validator.FieldError) []apierr.Constraint {
	tag, ok := fieldTag(root, fe.StructNamespace())
	if !ok {
		return nil
	}

	var out []apierr.Constraint
	for _, rule := range strings.Split(tag, ",") {
		name, param, _ := strings.Cut(rule, "=")
		switch {
		case name == "omitempty":
			continue
		case name == fe.Tag():
			out = append(out, apierr.Constraint{Name: name, Message: Message(fe)})
		case rerunnable[name]:
			if validate.Var(fe.Value(), rule) != nil {
				out = append(out, apierr.Constraint{
					Name:    name,
					Message: message(fe.Field(), name, param, fe.Kind()),
				})
			}
		default:
			return nil
		}
	}
	return out
}

// fieldTag resolves a struct namespace such as "Signup.Address.City" to the
// `validate` tag of the named field. Namespaces through slices or maps are
// not resolved.
func fieldTag(root reflect.Type, structNS string) (string, bool) {
	parts := strings.Split(structNS, ".")
	if len(parts) < 2 {
		return "", false
	}

	t := root
	var field reflect.StructField
	for _, name := range parts[1:] {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct || strings.ContainsRune(name, '[') {
			return "", false
		}
		f, ok := t.FieldByName(name)
		if !ok {
			return "", false
		}
		field, t = f, f.Type
	}
	return field.Tag.Get("validate"), true
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Message renders a client-facing sentence for one failed rule.
func Message(fe validator.FieldError) string {
	return message(fe.Field(), fe.Tag(), fe.Param(), fe.Kind())
}

func message(field, tag, param string, kind reflect.Kind) string {
	switch tag {
	case "required", "required_if", "required_with", "required_without":
		return field + " should not be empty"
	case "email":
		return field + " must be an email"
	case "url", "http_url":
		return field + " must be a URL address"
	case "uuid", "uuid4":
		return field + " must be a UUID"
	case "oneof":
		return fmt.Sprintf("%s must be one of the following values: %s", field, strings.Join(strings.Fields(param), ", "))
	case "min":
		if isLengthKind(kind) {
			return fmt.Sprintf("%s must be longer than or equal to %s characters", field, param)
		}
		return fmt.Sprintf("%s must not be less than %s", field, param)
	case "max":
		if isLengthKind(kind) {
			return fmt.Sprintf("%s must be shorter than or equal to %s characters", field, param)
		}
		return fmt.Sprintf("%s must not be greater than %s", field, param)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "alphanum":
		return field + " must contain only letters and numbers"
	}

	if param != "" {
		return fmt.Sprintf("%s failed the %s=%s rule", field, tag, param)
	}
	return fmt.Sprintf("%s failed the %s rule", field, tag)
}

func isLengthKind(k reflect.Kind) bool {
	switch k {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}

// Decode checks body against schema, unmarshals it into dst and runs the
// struct rules of dst. A nil schema skips the schema check.
func Decode(body json.RawMessage, schema *Schema, dst any) error {
	if schema != nil {
		if err := schema.Validate(body); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apierr.Schema(err)
	}
	return Struct(dst)
}
