package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransaction is returned when a classifier-produced transaction
// fails validation.
var ErrInvalidTransaction = errors.New("invalid transaction")

var (
	errRequired      = errors.New("is required")
	errMustBeType    = errors.New("must be Débito or Crédito")
	errMustBeNonNeg  = errors.New("must be a non-negative amount")
	errMustBeDateStr = errors.New("must be a valid DD/MM/YYYY date")
)

var fieldErrors = map[string]error{
	"Transaction.Type.required":      errRequired,
	"Transaction.Type.oneof":         errMustBeType,
	"Transaction.Category.required":  errRequired,
	"Transaction.Amount.gte":         errMustBeNonNeg,
	"Transaction.Date.required":      errMustBeDateStr,
	"Transaction.SenderID.required":  errRequired,
	"Transaction.MessageID.required": errRequired,
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// decimal.Decimal and civil.Date are structs; expose primitives so the
		// standard tags apply to them.
		validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(civil.Date); ok && d.IsValid() {
				return d.String()
			}
			return ""
		}, civil.Date{})
	})
	return validate
}

// Validate checks the invariants a transaction must hold before it is stored.
// The returned error wraps ErrInvalidTransaction and lists every failing field.
func (t *Transaction) Validate() error {
	err := validatorInstance().Struct(t)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		key := e.StructNamespace() + "." + e.Tag()
		msg := "is invalid"
		if v, ok := fieldErrors[key]; ok {
			msg = v.Error()
		}
		msgs = append(msgs, e.Field()+" "+msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransaction, strings.Join(msgs, "; "))
}
