package swagger

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// OpenAPI is the API document served at /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPI []byte

var (
	jsonOnce sync.Once
	jsonDoc  []byte
	jsonErr  error
)

// OpenAPIJSON returns the document re-encoded as JSON for clients that do not
// read YAML. The conversion runs once.
func OpenAPIJSON() ([]byte, error) {
	jsonOnce.Do(func() {
		jsonDoc, jsonErr = yamlToJSON(OpenAPI)
	})
	return jsonDoc, jsonErr
}

func yamlToJSON(src []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode openapi.yaml: %w", ErrServe, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode openapi json: %w", ErrServe, err)
	}
	return out, nil
}
