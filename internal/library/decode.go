package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/florianilch/folio/internal/apiclient"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// normalizer rewrites a decoded JSON value into the canonical shape.
type normalizer func(raw any) any

// decodeResponse decodes data into T: strict, then normalized, then coerced. Each
// stage must pass validation; the last failure is returned as a shape error.
func decodeResponse[T any](ctx context.Context, url string, status int, data []byte, normalize normalizer) (*T, error) {
	var strict T
	strictErr := json.Unmarshal(data, &strict)
	if strictErr == nil {
		if strictErr = validate.Struct(&strict); strictErr == nil {
			return &strict, nil
		}
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &apiclient.APIError{
			Message:     "response is not valid JSON",
			Status:      status,
			URL:         url,
			Body:        string(data),
			Diagnostics: []string{err.Error()},
		}
	}

	normalized := raw
	if normalize != nil {
		normalized = normalize(raw)
	}

	var tolerant T
	if err := remarshal(normalized, &tolerant); err == nil {
		if err := validate.Struct(&tolerant); err == nil {
			slog.DebugContext(ctx, "response normalized", "url", url, "reason", strictErr)
			return &tolerant, nil
		}
	}

	var coerced T
	err := coerce(normalized, &coerced)
	if err == nil {
		err = validate.Struct(&coerced)
	}
	if err == nil {
		slog.WarnContext(ctx, "response coerced", "url", url, "reason", strictErr)
		return &coerced, nil
	}

	return nil, &apiclient.APIError{
		Message:     "response failed validation",
		Status:      status,
		URL:         url,
		Body:        raw,
		Diagnostics: diagnostics(err),
	}
}

// remarshal round-trips v through JSON into out.
func remarshal(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// coerce decodes v into out, converting only numeric strings to numbers, numbers to
// string ids, a single string to a string list, and RFC 3339 strings to times. Any
// other type mismatch is an error.
func coerce(v any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Squash:  true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			numericStringHook,
			numberToStringHook,
			singleStringToSliceHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		Result: out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(v)
}

// numericStringHook parses strings such as "12" into numeric fields and refuses to
// truncate fractional numbers into integer fields.
func numericStringHook(from, to reflect.Type, data any) (any, error) {
	if f, ok := data.(float64); ok && isIntKind(to.Kind()) && f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	s, ok := data.(string)
	if !ok || from.Kind() != reflect.String {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return f, nil
	default:
		return data, nil
	}
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

// numberToStringHook formats integral numbers into string fields, for numeric ids.
func numberToStringHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch n := data.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return data, nil
		}
		return strconv.FormatInt(int64(n), 10), nil
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	default:
		return data, nil
	}
}

// singleStringToSliceHook wraps a lone string into a string list.
func singleStringToSliceHook(from, to reflect.Type, data any) (any, error) {
	s, ok := data.(string)
	if !ok || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}
	return []string{s}, nil
}

// diagnostics flattens validation errors into one line per failed field.
func diagnostics(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		out = append(out, msg)
	}
	return out
}
