package http

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

var (
	openAPIJSON     []byte
	openAPIJSONOnce sync.Once
	openAPIJSONErr  error
)

// getOpenAPIJSON returns the OpenAPI document as JSON. The embedded YAML is
// converted on first access and cached.
func getOpenAPIJSON() ([]byte, error) {
	openAPIJSONOnce.Do(func() {
		openAPIJSON, openAPIJSONErr = convertOpenAPIToJSON(openAPIYAML)
	})
	return openAPIJSON, openAPIJSONErr
}

func convertOpenAPIToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing openapi.yaml: %w", err)
	}

	doc, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// jsonCompatible rewrites decoded YAML so encoding/json accepts it. Mapping
// keys must be strings; numeric status codes such as 200 are stringified.
func jsonCompatible(v any) (any, error) {
	switch v := v.(type) {
	case map[string]any:
		for key, value := range v {
			converted, err := jsonCompatible(value)
			if err != nil {
				return nil, err
			}
			v[key] = converted
		}
		return v, nil
	case map[any]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			converted, err := jsonCompatible(value)
			if err != nil {
				return nil, err
			}
			result[fmt.Sprint(key)] = converted
		}
		return result, nil
	case []any:
		for i, value := range v {
			converted, err := jsonCompatible(value)
			if err != nil {
				return nil, err
			}
			v[i] = converted
		}
		return v, nil
	default:
		return v, nil
	}
}
