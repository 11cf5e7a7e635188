// Package scenario loads, generates, submits and verifies waterfall scenarios.
// It backs the waterfallctl command and is usable from tests.
package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
)

var (
	// ErrInvalidScenario is returned when a scenario file cannot be decoded.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrEmptyScenario is returned when a scenario has neither tiers nor a napkin form.
	ErrEmptyScenario = errors.New("scenario has no tiers")
)

// Scenario is one run described in a file. Either Input.Tiers or Napkin
// supplies the tier set; when Napkin is set it replaces Input.Tiers and
// Input.GPContributionPct.
type Scenario struct {
	Name        string                 `json:"name"`
	Granularity types.Granularity      `json:"granularity,omitempty"`
	Input       model.RunInput         `json:"input"`
	Napkin      *waterfall.NapkinInput `json:"napkin,omitempty"`
}

// Resolve returns the run input, expanding the napkin form when present.
func (s Scenario) Resolve() (model.RunInput, error) {
	in := s.Input
	if s.Napkin != nil {
		tiers, err := waterfall.BuildNapkinTiers(*s.Napkin)
		if err != nil {
			return model.RunInput{}, err
		}
		in.Tiers = tiers
		in.GPContributionPct = s.Napkin.GPContributionPct
	}
	if len(in.Tiers) == 0 {
		return model.RunInput{}, ErrEmptyScenario
	}
	return in, nil
}

// Load reads a scenario from a .yaml, .yml or .json file.
// A missing name defaults to the file's base name.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		base := filepath.Base(path)
		sc.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	return sc, nil
}

// Parse decodes YAML or JSON. JSON is valid YAML, so both go through the
// YAML decoder and are then re-encoded to reach the domain JSON codecs.
// Unknown fields are rejected and bare YYYY-MM-DD dates are accepted.
func Parse(data []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidScenario)
	}
	raw, err := json.Marshal(normalize(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	return &sc, nil
}

var dateOnly = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// normalize makes a decoded YAML tree JSON-encodable. Map keys become strings
// and date-only strings become RFC 3339 midnight UTC.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	case string:
		if dateOnly.MatchString(t) {
			if d, err := time.Parse(time.DateOnly, t); err == nil {
				return d.Format(time.RFC3339)
			}
		}
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	return v
}

// Marshal writes sc as YAML, the format Load reads back.
func Marshal(sc *Scenario) ([]byte, error) {
	raw, err := json.Marshal(sc)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}
