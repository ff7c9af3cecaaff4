package api

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

// Params is one tool call's argument bag with lenient coercion: agent
// callers routinely send "5" for 5, "true" for true, a bare string for a
// one-element list, or a JSON object serialized into a string. Getters
// accept those shapes and normalize; values that cannot be coerced fail
// with the offending field named.
type Params map[string]interface{}

// RejectUnknown fails when the bag contains a key outside allowed, naming
// both the stray keys and the accepted set
func (p Params) RejectUnknown(allowed ...string) *models.AppError {
	ok := make(map[string]bool, len(allowed))
	for _, key := range allowed {
		ok[key] = true
	}
	var unknown []string
	for key := range p {
		if !ok[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	sort.Strings(allowed)
	return models.NewValidationError("unknown parameter(s): %s", strings.Join(unknown, ", ")).
		WithDetail("unknown", unknown).
		WithDetail("allowed", allowed)
}

// Has reports whether the key is present, even with a null value
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns a string parameter; numbers and booleans are rendered
func (p Params) String(key string) (string, bool, *models.AppError) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	switch v := raw.(type) {
	case string:
		return v, true, nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), true, nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	default:
		return "", false, models.NewValidationError("parameter %q must be a string", key).
			WithDetail("field", key)
	}
}

// RequiredString is String with a MISSING_FIELD failure on absence
func (p Params) RequiredString(key string) (string, *models.AppError) {
	value, ok, err := p.String(key)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(value) == "" {
		return "", models.NewMissingFieldError(key)
	}
	return value, nil
}

// OptionalString returns a pointer when the key is present
func (p Params) OptionalString(key string) (*string, *models.AppError) {
	value, ok, err := p.String(key)
	if err != nil || !ok {
		return nil, err
	}
	return &value, nil
}

// Int coerces a number or numeric string
func (p Params) Int(key string) (int, bool, *models.AppError) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false, models.NewValidationError("parameter %q must be an integer", key).
				WithDetail("field", key)
		}
		return int(v), true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false, models.NewValidationError("parameter %q must be an integer, got %q", key, v).
				WithDetail("field", key)
		}
		return n, true, nil
	default:
		return 0, false, models.NewValidationError("parameter %q must be an integer", key).
			WithDetail("field", key)
	}
}

// boolWords maps the accepted textual booleans
var boolWords = map[string]bool{
	"true": true, "yes": true, "on": true, "1": true,
	"false": false, "no": false, "off": false, "0": false,
}

// Bool coerces a boolean, a yes/no word or a 0/1 number
func (p Params) Bool(key string) (bool, bool, *models.AppError) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return false, false, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, true, nil
	case string:
		if b, ok := boolWords[strings.ToLower(strings.TrimSpace(v))]; ok {
			return b, true, nil
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, true, nil
		}
	}
	return false, false, models.NewValidationError("parameter %q must be a boolean", key).
		WithDetail("field", key).
		WithDetail("accepted", []string{"true", "false", "yes", "no", "on", "off", "1", "0"})
}

// BoolDefault is Bool with a fallback
func (p Params) BoolDefault(key string, fallback bool) (bool, *models.AppError) {
	value, ok, err := p.Bool(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return fallback, nil
	}
	return value, nil
}

// StringSlice coerces an array parameter: a JSON array of scalars, a bare
// scalar (one-element list) or a comma-separated string all work
func (p Params) StringSlice(key string) ([]string, bool, *models.AppError) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	switch v := raw.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarString(key, item)
			if err != nil {
				return nil, false, err
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out, true, nil
	case string:
		if strings.Contains(v, ",") {
			parts := strings.Split(v, ",")
			out := make([]string, 0, len(parts))
			for _, part := range parts {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					out = append(out, trimmed)
				}
			}
			return out, true, nil
		}
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return []string{trimmed}, true, nil
		}
		return []string{}, true, nil
	default:
		s, err := scalarString(key, raw)
		if err != nil {
			return nil, false, err
		}
		return []string{s}, true, nil
	}
}

func scalarString(key string, raw interface{}) (string, *models.AppError) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", models.NewValidationError("parameter %q must contain scalar values", key).
			WithDetail("field", key)
	}
}

// Object coerces an object parameter; a JSON object serialized into a
// string is unwrapped
func (p Params) Object(key string) (models.JSONMap, bool, *models.AppError) {
	raw, ok := p[key]
	if !ok {
		return nil, false, nil
	}
	if raw == nil {
		return nil, true, nil
	}
	switch v := raw.(type) {
	case map[string]interface{}:
		return models.JSONMap(v), true, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return models.JSONMap{}, true, nil
		}
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			return nil, false, models.NewValidationError("parameter %q must be a JSON object", key).
				WithDetail("field", key).
				WithDetail("parse_error", err.Error())
		}
		return models.JSONMap(parsed), true, nil
	default:
		return nil, false, models.NewValidationError("parameter %q must be a JSON object", key).
			WithDetail("field", key)
	}
}

// UUID coerces an identifier in canonical or compact form
func (p Params) UUID(key string) (uuid.UUID, bool, *models.AppError) {
	value, ok, err := p.String(key)
	if err != nil || !ok {
		return uuid.Nil, false, err
	}
	id, appErr := models.NormalizeIDField(key, value)
	if appErr != nil {
		return uuid.Nil, false, appErr
	}
	return id, true, nil
}

// RequiredUUID is UUID with a MISSING_FIELD failure on absence
func (p Params) RequiredUUID(key string) (uuid.UUID, *models.AppError) {
	id, ok, err := p.UUID(key)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, models.NewMissingFieldError(key)
	}
	return id, nil
}

// UUIDSlice coerces an array of identifiers
func (p Params) UUIDSlice(key string) ([]uuid.UUID, bool, *models.AppError) {
	values, ok, err := p.StringSlice(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	out := make([]uuid.UUID, 0, len(values))
	for _, value := range values {
		id, appErr := models.NormalizeIDField(key, value)
		if appErr != nil {
			return nil, false, appErr
		}
		out = append(out, id)
	}
	return out, true, nil
}

// Enum coerces a string constrained to a fixed set, case-folded
func (p Params) Enum(key string, accepted ...string) (string, bool, *models.AppError) {
	value, ok, err := p.String(key)
	if err != nil || !ok {
		return "", ok, err
	}
	folded := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range accepted {
		if folded == candidate {
			return candidate, true, nil
		}
	}
	return "", false, models.NewValidationError("parameter %q must be one of %s, got %q",
		key, strings.Join(accepted, "|"), value).
		WithDetail("field", key).
		WithDetail("accepted", accepted)
}
