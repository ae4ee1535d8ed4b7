package position

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Request is a position analysis request.
type Request struct {
	Underlying Underlying   `json:"underlying"`
	Legs       []LegRequest `json:"legs" validate:"required,min=1,dive"`
	Scenarios  *Scenarios   `json:"scenarios,omitempty"`
	DefaultIV  *float64     `json:"default_iv,omitempty" validate:"omitempty,gt=0.01,lte=5"`
	Rate       *float64     `json:"r,omitempty" validate:"omitempty,gte=-0.1,lte=1"`
	Dividend   *float64     `json:"q,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Underlying identifies the underlying and its current price.
type Underlying struct {
	Symbol string  `json:"symbol" validate:"required"`
	Price  float64 `json:"price" validate:"gt=0"`
}

// LegRequest is one leg as submitted by the caller.
type LegRequest struct {
	Type   string   `json:"type" validate:"required,oneof=call put"`
	Side   string   `json:"side" default:"long" validate:"oneof=long short"`
	Qty    int      `json:"qty" validate:"min=1"`
	Strike float64  `json:"strike" validate:"gt=0"`
	Expiry string   `json:"expiry" validate:"required,datetime=2006-01-02"`
	IV     *float64 `json:"iv,omitempty" validate:"omitempty,gt=0.01,lte=5"`
	Price  *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
}

// Scenarios are the axes of the scenario grid. Empty axes collapse to a
// single zero shift.
type Scenarios struct {
	SpotPct []float64 `json:"spot_pct" validate:"dive,gt=-100"`
	IVPts   []float64 `json:"iv_pts"`
	Days    []int     `json:"days" validate:"dive,gte=0"`
}

// DefaultScenarios is the grid used when a request carries no scenarios.
func DefaultScenarios() Scenarios {
	return Scenarios{
		SpotPct: []float64{-10, -5, 0, 5, 10},
		IVPts:   []float64{0},
		Days:    []int{0},
	}
}

// DecodeRequest parses and validates a JSON request. Unknown fields and
// type mismatches are reported as validation errors.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, decodeError(err)
	}
	if err := ValidateRequest(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ValidateRequest applies defaults and validates the request, returning
// apperrors.ValidationErrors listing every offending field.
func ValidateRequest(req *Request) error {
	if err := defaults.Set(req); err != nil {
		return apperrors.ValidationErrors{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}
	if err := validate.Struct(req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

// ModelLegs converts the validated legs into model legs.
func (r *Request) ModelLegs() ([]models.Leg, error) {
	legs := make([]models.Leg, 0, len(r.Legs))
	for i, l := range r.Legs {
		typ, err := models.ParseOptionType(l.Type)
		if err != nil {
			return nil, apperrors.ValidationErrors{*apperrors.NewValidationError(fmt.Sprintf("legs[%d].type", i), "ERR_ONEOF", l.Type, err.Error())}
		}
		expiry, err := models.ParseDate(l.Expiry)
		if err != nil {
			return nil, apperrors.ValidationErrors{*apperrors.NewValidationError(fmt.Sprintf("legs[%d].expiry", i), "ERR_DATETIME", l.Expiry, err.Error())}
		}
		legs = append(legs, models.Leg{
			Type:       typ,
			Side:       models.Side(l.Side),
			Quantity:   l.Qty,
			Strike:     l.Strike,
			Expiry:     expiry,
			IV:         l.IV,
			EntryPrice: l.Price,
		})
	}
	return legs, nil
}

func toValidationErrors(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.ValidationErrors{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}
	out := make(apperrors.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, *apperrors.NewValidationError(
			fieldPath(fe.Namespace()),
			"ERR_"+strings.ToUpper(fe.Tag()),
			fe.Value(),
			errorMessage(fe),
		))
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func errorMessage(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperrors.ValidationErrors{*apperrors.NewValidationError(
			typeErr.Field,
			"ERR_TYPE",
			typeErr.Value,
			fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type),
		)}
	}
	return apperrors.ValidationErrors{{Code: "ERR_DECODE", Message: err.Error()}}
}
