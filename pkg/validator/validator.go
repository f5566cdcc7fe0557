// Package validator wraps go-playground/validator with bridge-specific rules.
package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	pkgerrors "zkbridge/pkg/errors"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.registerCustomValidations()
	return v
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		// Format validation errors
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for API clients.
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "eth_addr":
					msg = "Must be a 0x-prefixed 20-byte hex address"
				case "gte":
					msg = fmt.Sprintf("Must be at least %s", e.Param())
				case "hexbytes":
					msg = "Must be 0x-prefixed hex"
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (v *Validator) registerCustomValidations() {
	// Register decimal.Decimal to be validated as float64 for gt/gte checks
	v.validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := val.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.validate.RegisterValidation("hexbytes", func(fl validator.FieldLevel) bool {
		_, err := hexutil.Decode(strings.TrimSpace(fl.Field().String()))
		return err == nil
	})
}

// ParseAmount parses a decimal amount in smallest units. Exponent notation is
// accepted as long as the value is integral, e.g. "1e18".
func ParseAmount(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, pkgerrors.ErrInvalidAmount
	}
	return AmountFromDecimal(d)
}

// AmountFromDecimal converts a decoded amount to uint256, rejecting negative,
// fractional and oversized values.
func AmountFromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	if !d.IsInteger() || d.Sign() < 0 {
		return nil, pkgerrors.ErrInvalidAmount
	}
	z, overflow := uint256.FromBig(d.BigInt())
	if overflow {
		return nil, pkgerrors.ErrInvalidAmount
	}
	return z, nil
}
