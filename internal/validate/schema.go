// Package validate keeps a form draft's field-level errors and its single
// "safe to commit" boolean synchronized with the live draft. Expected
// validation failure is a value, never an error; errors are reserved for
// programmer mistakes.
package validate

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Result is one complete validation outcome. Each new computation
// supersedes the previous one entirely; nothing is patched incrementally.
type Result struct {
	Errors map[string]string
	Valid  bool
}

// CrossRule is an invariant spanning several fields, computed locally
// rather than by the structural schema. It reports the violated field and
// its message, or ok=true when satisfied.
type CrossRule func(draft any) (field, message string, ok bool)

var (
	baseOnce sync.Once
	base     *validator.Validate
)

var (
	nameCharsRe = regexp.MustCompile(`^[A-Za-zÁÉÍÓÚáéíóúÑñ\s'._-]+$`)
	orgCharsRe  = regexp.MustCompile(`^[A-Za-zÁÉÍÓÚáéíóúÑñ0-9\s_.-]+$`)
	descCharsRe = regexp.MustCompile(`^[A-Za-zÁÉÍÓÚáéíóúÑñ0-9\s,.;:()'"¡!¿?%_-]*$`)
)

// baseValidator returns the shared validator instance. Field paths in
// results follow the json tag, matching what the UI renders against.
func baseValidator() *validator.Validate {
	baseOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		mustRegex := func(tag string, re *regexp.Regexp) {
			_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return re.MatchString(fl.Field().String())
			})
		}
		mustRegex("name_chars", nameCharsRe)
		mustRegex("org_chars", orgCharsRe)
		mustRegex("desc_chars", descCharsRe)
		base = v
	})
	return base
}

// Schema pairs struct-tag driven structural validation with a message
// table and locally computed cross-field rules. All violations are
// collected; nothing fails fast.
type Schema struct {
	messages map[string]map[string]string
	cross    []CrossRule
}

// NewSchema builds a Schema. messages maps field path -> validation tag ->
// user-facing message.
func NewSchema(messages map[string]map[string]string, cross ...CrossRule) *Schema {
	return &Schema{messages: messages, cross: cross}
}

// Evaluate runs the schema against a draft snapshot. Structural violations
// and cross-field violations land in the same field->message map so the UI
// never sees two different error shapes.
func (s *Schema) Evaluate(draft any) Result {
	errs := make(map[string]string)

	if err := baseValidator().Struct(draft); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			// Not a validation outcome: the draft itself is malformed,
			// which is a programmer error.
			panic(err)
		}
		for _, fe := range verrs {
			field := fe.Field()
			if _, exists := errs[field]; exists {
				continue
			}
			errs[field] = s.message(field, fe.Tag())
		}
	}

	for _, rule := range s.cross {
		field, msg, ok := rule(draft)
		if ok {
			continue
		}
		if _, exists := errs[field]; !exists {
			errs[field] = msg
		}
	}

	return Result{Errors: errs, Valid: len(errs) == 0}
}

func (s *Schema) message(field, tag string) string {
	if byTag, ok := s.messages[field]; ok {
		if msg, ok := byTag[tag]; ok {
			return msg
		}
	}
	return field + " is invalid"
}
