// Package config loads typed configuration structs from YAML files and
// environment variables using `env`, `yaml`, `default` and `required` tags.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validator allows config structs to implement custom validation logic.
// If a config struct implements this interface, validation is called
// automatically after loading.
type Validator interface {
	Validate() error
}

// GetConfig loads configuration from a YAML file first, then overlays
// environment variables. If filepath is empty, only environment variables
// are used. If allowFileErrors is true, file read/parse errors fall back to
// env-only loading.
func GetConfig[T any](dest *T, filepath string, allowFileErrors bool) error {
	if filepath != "" {
		data, err := os.ReadFile(filepath)
		switch {
		case err != nil && !allowFileErrors:
			return fmt.Errorf("failed to read file: %w", err)
		case err == nil:
			if err := yaml.Unmarshal(data, dest); err != nil {
				if !allowFileErrors {
					return fmt.Errorf("failed to unmarshal YAML: %w", err)
				}
			}
		}
	}
	return GetConfigFromEnvVars(dest)
}

// GetConfigFromEnvVars overlays environment variables onto dest, applies
// defaults for zero-valued fields, checks required fields and runs custom
// validation.
func GetConfigFromEnvVars[T any](dest *T) error {
	val := reflect.ValueOf(dest).Elem()

	setFromEnv := make(map[string]bool)
	if err := overlayEnv(val, val.Type(), setFromEnv); err != nil {
		return err
	}
	if err := applyDefaults(val, val.Type(), setFromEnv); err != nil {
		var zero T
		*dest = zero
		return err
	}

	if validator, ok := any(dest).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

func overlayEnv(val reflect.Value, typ reflect.Type, setFromEnv map[string]bool) error {
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := overlayEnv(field, fieldType.Type, setFromEnv); err != nil {
				return err
			}
			continue
		}

		tag := fieldType.Tag.Get("env")
		if tag == "" {
			continue
		}
		envVal := os.Getenv(tag)
		if envVal == "" {
			continue
		}
		if err := setField(field, envVal); err != nil {
			return fmt.Errorf("env %s: %w", tag, err)
		}
		setFromEnv[typ.Name()+"."+fieldType.Name] = true
	}
	return nil
}

func applyDefaults(val reflect.Value, typ reflect.Type, setFromEnv map[string]bool) error {
	var result error
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyDefaults(field, fieldType.Type, setFromEnv); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}

		defaultTag := fieldType.Tag.Get("default")
		required := strings.EqualFold(fieldType.Tag.Get("required"), "true")
		if required && defaultTag != "" {
			required = false // a default always satisfies required
		}

		if field.IsZero() && required {
			result = multierror.Append(result, fmt.Errorf(
				"required field env:%s / yaml:%s is missing",
				fieldType.Tag.Get("env"), fieldType.Tag.Get("yaml")))
			continue
		}

		fieldKey := typ.Name() + "." + fieldType.Name
		if field.IsZero() && defaultTag != "" && !setFromEnv[fieldKey] {
			if err := setField(field, defaultTag); err != nil {
				result = multierror.Append(result, fmt.Errorf("default for %s: %w", fieldType.Name, err))
			}
		}
	}
	return result
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %q to duration: %w", raw, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %q to int: %w", raw, err)
		}
		field.SetInt(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %q to float: %w", raw, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %q to bool: %w", raw, err)
		}
		field.SetBool(v)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		values := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), len(values), len(values))
		for i, v := range values {
			slice.Index(i).SetString(strings.TrimSpace(v))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}
