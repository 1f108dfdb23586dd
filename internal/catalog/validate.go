package catalog

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// NormalizeRoute trims identifiers and validates r.
func NormalizeRoute(r Route) (Route, error) {
	r.RouteID = strings.TrimSpace(r.RouteID)
	r.Name = strings.TrimSpace(r.Name)
	r.City = strings.TrimSpace(r.City)
	if err := validate.Struct(r); err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return r, nil
}

// NormalizeStop trims identifiers and validates s.
func NormalizeStop(s Stop) (Stop, error) {
	s.StopID = strings.TrimSpace(s.StopID)
	s.RouteID = strings.TrimSpace(s.RouteID)
	s.NameEN = strings.TrimSpace(s.NameEN)
	if err := validate.Struct(s); err != nil {
		return Stop{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s, nil
}
