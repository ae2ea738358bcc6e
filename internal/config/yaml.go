package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// configJSON returns the config file as JSON for the strict decoder. Files
// named *.json pass through; anything else is read as a single YAML
// document. An empty file yields nil.
func configJSON(path string, data []byte) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return data, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	var next any
	if err := dec.Decode(&next); !errors.Is(err, io.EOF) {
		return nil, errors.New("config holds more than one YAML document")
	}
	return json.Marshal(stringKeys(doc))
}

// stringKeys rewrites YAML maps so every key is a string; yaml allows
// numeric and boolean keys that encoding/json cannot marshal.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}

// fieldError names the config key behind a JSON type mismatch, the usual
// result of an unquoted number where a duration string belongs.
func fieldError(err error) error {
	var te *json.UnmarshalTypeError
	if !errors.As(err, &te) || te.Field == "" {
		return err
	}
	if te.Value == "number" && te.Type.Kind() == reflect.String {
		return fmt.Errorf("%s: got a bare number; durations need a unit, e.g. \"30s\"", te.Field)
	}
	return fmt.Errorf("%s: got %s, want %s", te.Field, te.Value, te.Type)
}
