// Package catalog loads and validates the ordered question catalog that
// drives a questionnaire.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dkarpov/fitbot/internal/model"
)

//go:embed questions/fitness_en.json
var defaultCatalog []byte

// questionFile mirrors one on-disk catalog entry. The skip condition is
// declared as a JSON object keyed by response key so catalog files stay
// readable; it must contain exactly one pair.
type questionFile struct {
	Text        string            `json:"text"`
	ResponseKey string            `json:"response_key"`
	Placeholder string            `json:"placeholder"`
	Kind        model.InputKind   `json:"kind"`
	Options     []model.Option    `json:"options"`
	PreMessage  *model.PreMessage `json:"pre_message"`
	SkipIf      map[string]bool   `json:"skip_if"`
}

// Load reads and validates a catalog file.
func Load(path string) ([]model.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	questions, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return questions, nil
}

// Default returns the built-in fitness questionnaire.
func Default() ([]model.Question, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a JSON catalog and checks the catalog invariants:
// response keys are unique, options are present exactly for options
// questions, skip conditions carry a single pair and reference an
// earlier question, and at most one picture question exists.
func Parse(data []byte) ([]model.Question, error) {
	var entries []questionFile
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	questions := make([]model.Question, 0, len(entries))
	seenKeys := make(map[string]int, len(entries))
	pictures := 0

	for i, e := range entries {
		if e.Text == "" {
			return nil, fmt.Errorf("question %d: missing text", i)
		}
		if e.ResponseKey == "" {
			return nil, fmt.Errorf("question %d: missing response_key", i)
		}
		if prev, dup := seenKeys[e.ResponseKey]; dup {
			return nil, fmt.Errorf("question %d: response_key %q already used by question %d", i, e.ResponseKey, prev)
		}

		switch e.Kind {
		case model.KindText, model.KindEmail, model.KindNumber, model.KindBoolean, model.KindPicture:
			if len(e.Options) > 0 {
				return nil, fmt.Errorf("question %d (%s): options are only allowed for %q questions", i, e.ResponseKey, model.KindOptions)
			}
		case model.KindOptions:
			if len(e.Options) == 0 {
				return nil, fmt.Errorf("question %d (%s): %q questions require options", i, e.ResponseKey, model.KindOptions)
			}
		default:
			return nil, fmt.Errorf("question %d (%s): unknown kind %q", i, e.ResponseKey, e.Kind)
		}

		if e.Kind == model.KindPicture {
			pictures++
			if pictures > 1 {
				return nil, fmt.Errorf("question %d (%s): only one picture question is supported", i, e.ResponseKey)
			}
		}

		var skip *model.SkipCondition
		if e.SkipIf != nil {
			if len(e.SkipIf) != 1 {
				return nil, fmt.Errorf("question %d (%s): skip_if must contain exactly one pair, got %d", i, e.ResponseKey, len(e.SkipIf))
			}
			for key, value := range e.SkipIf {
				if _, ok := seenKeys[key]; !ok {
					return nil, fmt.Errorf("question %d (%s): skip_if references %q which does not occur earlier in the catalog", i, e.ResponseKey, key)
				}
				skip = &model.SkipCondition{Key: key, Value: value}
			}
		}

		seenKeys[e.ResponseKey] = i
		questions = append(questions, model.Question{
			Text:          e.Text,
			ResponseKey:   e.ResponseKey,
			Placeholder:   e.Placeholder,
			Kind:          e.Kind,
			Options:       e.Options,
			PreMessage:    e.PreMessage,
			SkipCondition: skip,
		})
	}

	return questions, nil
}
