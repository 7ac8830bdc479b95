package object

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/telos/internal/errs"
)

// objectValidate checks struct tags on every variant. Initialized in init()
// with the custom "objectid" tag and JSON field naming.
var objectValidate *validator.Validate

func init() {
	objectValidate = validator.New()

	// Report fields by their JSON names so errors match the stored form.
	objectValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = objectValidate.RegisterValidation("objectid", validateObjectID)
}

// validateObjectID accepts a full 64-character lowercase hex ID.
func validateObjectID(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return len(s) == IDLen && isHex(s)
}

// Validate checks the structural rules of obj: required fields, enum values,
// ID syntax. It does not check that referenced objects exist.
func Validate(obj Object) error {
	if obj == nil {
		return errs.New(errs.ErrInvalidObject, "object.validate", "", "nil object")
	}
	err := objectValidate.Struct(obj)
	if err == nil {
		if c, ok := obj.(Constraint); ok {
			return checkLifecycle(c)
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errs.Wrap(errs.ErrInvalidObject, "object.validate", string(obj.Kind()), err)
	}
	fe := verrs[0]
	return &errs.Error{
		Kind:    errs.ErrInvalidObject,
		Op:      "object.validate",
		Subject: string(obj.Kind()),
		Field:   fieldPath(fe.Namespace()),
		Message: describe(fe),
	}
}

// fieldPath drops the leading struct name from a validator namespace:
// "Intent.author.name" becomes "author.name".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "objectid":
		return fmt.Sprintf("not a 64-character hex object id: %q", fmt.Sprint(fe.Value()))
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must be >= %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// checkLifecycle enforces the fields that go with each constraint status.
func checkLifecycle(c Constraint) error {
	fail := func(field, msg string) error {
		return &errs.Error{Kind: errs.ErrInvalidObject, Op: "object.validate", Subject: string(KindConstraint), Field: field, Message: msg}
	}
	switch c.Status {
	case StatusActive:
		if !c.SupersededBy.IsZero() {
			return fail("superseded_by", "must be empty for an active constraint")
		}
	case StatusSuperseded:
		if c.SupersededBy.IsZero() {
			return fail("superseded_by", "is required for a superseded constraint")
		}
	case StatusDeprecated:
		if c.DeprecationReason == "" {
			return fail("deprecation_reason", "is required for a deprecated constraint")
		}
	}
	return nil
}
