package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	pipelineerrors "github.com/flowkit/pipelinectl/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	stepIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// validatorInstance returns the shared, lazily-constructed validator (the
// teacher's singleton-with-sync.Once idiom, carried over verbatim).
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}

// GetValidator exposes the shared validator for callers outside this package.
func GetValidator() *validator.Validate {
	return validatorInstance()
}

// Validate runs schema and cross-field checks on a parsed Pipeline: struct
// tags via go-playground/validator, then duplicate-name and depends_on
// existence checks (dependency cycle detection itself is internal/dag's job,
// not this package's — see SPEC_FULL.md §4.6).
func Validate(p *Pipeline) error {
	if p == nil {
		return pipelineerrors.NewValidationError("pipeline", "pipeline is nil", nil)
	}
	if err := validatorInstance().Struct(p); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]int, len(p.Steps))
	for i, s := range p.Steps {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("step_%d", i)
		}
		if _, exists := seen[name]; exists {
			return pipelineerrors.NewValidationError(fieldForStep(i, "name"), fmt.Sprintf("duplicate step name %q", name), nil)
		}
		seen[name] = i
	}

	for i, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := seen[dep]; !ok {
				return pipelineerrors.NewValidationError(fieldForStep(i, "depends_on"), fmt.Sprintf("references unknown step %q", dep), nil)
			}
		}
	}

	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}
	if ves, ok := err.(validator.ValidationErrors); ok && len(ves) > 0 {
		fe := ves[0]
		field := yamlishFieldName(fe)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, fe.Tag())
		return pipelineerrors.NewValidationError(field, msg, err)
	}
	return pipelineerrors.NewValidationError("pipeline", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("pipeline.steps[%d].%s", index, field)
}
