package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Stagehand/internal/domain"
)

// specValidate — валидатор тегов FlavorSpec.
var specValidate *validator.Validate

var flavorNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

func init() {
	specValidate = validator.New()

	_ = specValidate.RegisterValidation("stagename", func(fl validator.FieldLevel) bool {
		return domain.StageName(fl.Field().String()).IsValid()
	})
	_ = specValidate.RegisterValidation("flavorname", func(fl validator.FieldLevel) bool {
		return flavorNamePattern.MatchString(fl.Field().String())
	})
}

// ParseFlavorSpec разбирает YAML-описание flavor'а и валидирует его.
//
// Неизвестные поля считаются ошибкой: опечатка в имени поля иначе
// молча отключила бы часть стадии.
func ParseFlavorSpec(data []byte) (*domain.FlavorSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec domain.FlavorSpec
	if err := dec.Decode(&spec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidSpec)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	if err := Validate(&spec); err != nil {
		return nil, err
	}

	return &spec, nil
}

// Validate выполняет полную валидацию FlavorSpec.
//
// Проверяет:
//   - имя flavor'а
//   - имена стадий
//   - действия: ровно один ключ известного типа
//   - зависимости (depends_on): известные стадии, без self-dependency
//
// Циклы проверяются при построении плана (BuildPlan).
func Validate(spec *domain.FlavorSpec) error {
	if spec == nil {
		return NewValidationError("", "name", "flavor spec is empty", ErrEmptyName)
	}

	if err := specValidate.Struct(spec); err != nil {
		return withFlavor(translateValidation(err), spec.Name)
	}

	for _, stage := range domain.AllStages {
		def, ok := spec.Stages[stage]
		if !ok {
			continue
		}
		if err := ValidateStage(stage, &def); err != nil {
			return withFlavor(err, spec.Name)
		}
	}

	return nil
}

// ValidateStage валидирует одну стадию.
func ValidateStage(stage domain.StageName, def *domain.StageDef) error {
	name := string(stage)

	for _, dep := range def.DependsOn {
		if dep == stage {
			return NewValidationError(name, "depends_on",
				"stage depends on itself", ErrSelfDependency)
		}
		if !dep.IsValid() {
			return NewValidationError(name, "depends_on",
				fmt.Sprintf("depends on unknown stage: %s", dep), ErrMissingDependency)
		}
	}

	for i, action := range def.Actions {
		if err := validateAction(name, i, action); err != nil {
			return err
		}
	}

	return nil
}

// validateAction проверяет, что у действия ровно один тип.
func validateAction(stage string, index int, action domain.ActionDef) error {
	field := fmt.Sprintf("actions[%d]", index)

	if len(action) == 0 {
		return NewValidationError(stage, field, "action is empty", ErrEmptyAction)
	}

	switch types := action.Types(); len(types) {
	case 0:
		keys := make([]string, 0, len(action))
		for k := range action {
			keys = append(keys, k)
		}
		return NewValidationError(stage, field,
			fmt.Sprintf("action has no known type (keys: %s)", strings.Join(keys, ", ")), ErrUnknownActionType)
	case 1:
		return nil
	default:
		return NewValidationError(stage, field,
			fmt.Sprintf("action has several types: %s", strings.Join(types, ", ")), ErrAmbiguousAction)
	}
}

// IsValidActionType проверяет, является ли тип действия допустимым.
func IsValidActionType(actionType string) bool {
	for _, t := range domain.ActionTypes {
		if t == actionType {
			return true
		}
	}
	return false
}

// translateValidation превращает ошибки validator в ValidationError.
func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "stagename":
		return NewValidationError(fmt.Sprint(fe.Value()), "stages",
			fmt.Sprintf("unknown stage: %v", fe.Value()), ErrUnknownStage)
	case "required":
		if fe.Field() == "Name" {
			return NewValidationError("", "name", "flavor spec has no name", ErrEmptyName)
		}
		return NewValidationError("", fe.Namespace(), fe.Namespace()+" is required", ErrEmptyAction)
	case "flavorname":
		return NewValidationError("", "name",
			fmt.Sprintf("invalid flavor name: %q", fe.Value()), ErrInvalidSpec)
	default:
		return NewValidationError("", fe.Namespace(),
			fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()), ErrInvalidSpec)
	}
}

func withFlavor(err error, flavor string) error {
	var vErr *ValidationError
	if errors.As(err, &vErr) && vErr.Flavor == "" {
		vErr.Flavor = flavor
	}
	return err
}
