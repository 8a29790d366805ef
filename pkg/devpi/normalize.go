package devpi

import (
	"reflect"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mitchellh/mapstructure"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
)

// unwrapResult returns the payload nested under a "result" envelope key, or
// the value itself when no envelope is present. Already-unwrapped values
// pass through unchanged, so applying it twice is harmless.
func unwrapResult(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	inner, ok := obj["result"]
	if !ok {
		return v
	}
	return inner
}

// asObject asserts that a decoded payload is a JSON object. what names the
// payload for the error message.
func asObject(v any, what string) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, apierr.New(apierr.CodeResponseParsing, "%s must be an object, got %T", what, v)
	}
	return obj, nil
}

// injectDefaults fills keys the server omits from payloads with values
// known from the call context. Existing keys are never overwritten.
func injectDefaults(obj map[string]any, defaults map[string]any) {
	for k, v := range defaults {
		if _, ok := obj[k]; !ok {
			obj[k] = v
		}
	}
}

// decodeRecord maps a normalized payload object onto a typed record using
// the record's json tags.
func decodeRecord(raw any, out any, what string) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "json",
		DecodeHook: lenientTimeHook,
	})
	if err != nil {
		return apierr.Wrap(apierr.CodeResponseParsing, err, "build decoder for %s", what)
	}
	if err := dec.Decode(raw); err != nil {
		return apierr.Wrap(apierr.CodeResponseParsing, err, "decode %s", what)
	}
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

// lenientTimeHook converts timestamp strings and unix-epoch numbers into
// time.Time fields. devpi servers are not consistent about the format.
func lenientTimeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		parsed, err := dateparse.ParseAny(v)
		if err != nil {
			return nil, err
		}
		return parsed, nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		return data, nil
	}
}

// validateNonEmpty rejects blank required string parameters before any
// request is issued.
func validateNonEmpty(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return apierr.New(apierr.CodeValidation, "parameter %q must be a non-empty string", name)
	}
	return nil
}

// DeleteResponse is the acknowledgement returned by delete operations.
type DeleteResponse struct {
	Message string `json:"message"`
}

func parseDeleteResponse(raw any) (*DeleteResponse, error) {
	obj, err := asObject(unwrapResult(raw), "delete response")
	if err != nil {
		return nil, err
	}
	var resp DeleteResponse
	if err := decodeRecord(obj, &resp, "delete response"); err != nil {
		return nil, err
	}
	if resp.Message == "" {
		return nil, apierr.New(apierr.CodeResponseParsing, "delete response missing message")
	}
	return &resp, nil
}
