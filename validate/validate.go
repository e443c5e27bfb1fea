package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mikeydub/go-union/service/continuation"
	"github.com/mikeydub/go-union/service/persist"
)

// MaxPageSize bounds every paginated request
const MaxPageSize = 1000

func RegisterCustomValidators(v *validator.Validate) {
	v.RegisterValidation("chain", ChainValidator)
	v.RegisterValidation("continuation", ContinuationValidator)
	v.RegisterAlias("page_size", fmt.Sprintf("gte=1,lte=%d", MaxPageSize))
	v.RegisterAlias("batch_size", fmt.Sprintf("gte=1,lte=%d", MaxPageSize))

	v.RegisterStructValidation(ChainAddressValidator, ChainAddress{})
}

type ValWithTags struct {
	Value interface{}
	Tag   string
}

type ValidationMap map[string]ValWithTags

func WithTag(value interface{}, tag string) ValWithTags {
	return ValWithTags{Value: value, Tag: tag}
}

// ValidateFields validates every field and reports all failures as one persist.ErrInvalidInput
func ValidateFields(validator *validator.Validate, fields ValidationMap) error {
	var params, reasons []string

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := fields[k]
		if err := validator.Var(v.Value, v.Tag); err != nil {
			params = append(params, k)
			reasons = append(reasons, reasonFor(k, err))
		}
	}

	if len(params) == 0 {
		return nil
	}

	return persist.ErrInvalidInput{Parameter: strings.Join(params, ","), Reason: strings.Join(reasons, "; ")}
}

func reasonFor(field string, err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed '%s=%s'", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed '%s'", field, fe.Tag())
}

// ChainAddress is an address that must be valid on its chain
type ChainAddress struct {
	Chain   persist.Chain
	Address string
}

func ChainAddressValidator(sl validator.StructLevel) {
	ca := sl.Current().Interface().(ChainAddress)

	if !ca.Chain.IsValid() {
		sl.ReportError(ca.Chain, "Chain", "Chain", "chain", "")
		return
	}

	if _, err := persist.NormalizeAddress(ca.Chain, ca.Address); err != nil {
		sl.ReportError(ca.Address, "Address", "Address", "address", string(ca.Chain))
	}
}

// ChainValidator ensures the specified chain is one we support
var ChainValidator validator.Func = func(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := persist.ParseChain(s)
	return err == nil
}

// ContinuationValidator rejects continuations too long to be one we handed out. Malformed but
// reasonably sized continuations are accepted and treated as a fresh start.
var ContinuationValidator validator.Func = func(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= continuation.MaxLength
}
