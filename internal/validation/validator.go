package validation

import (
	"regexp"

	validatorv10 "github.com/go-playground/validator/v10"
)

// entityIDPattern matches customer, product, shop and order ids.
var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

var std = New()

// New returns a configured validator with the custom tags and struct-level
// validations registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	_ = v.RegisterValidation("entity_id", func(fl validatorv10.FieldLevel) bool {
		return entityIDPattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(shippingStructValidation, Shipping{})

	return v
}

// ValidID reports whether s is a well formed entity id.
func ValidID(s string) bool {
	return std.Var(s, "entity_id") == nil
}

// Struct validates v with the shared validator.
func Struct(v any) error {
	return std.Struct(v)
}

// shippingStructValidation requires lat and lng to be given together.
func shippingStructValidation(sl validatorv10.StructLevel) {
	s := sl.Current().Interface().(Shipping)
	if (s.Lat == nil) != (s.Lng == nil) {
		sl.ReportError(s.Lat, "lat", "Lat", "lat_lng_pair", "")
	}
}
