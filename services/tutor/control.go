package tutor

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
)

// Assistant messages may embed exactly one single-line JSON directive wrapped
// in <control>...</control>. Absence of the wrapper is not an error; malformed
// JSON and schema mismatches are hard errors surfaced to the caller.

// TeachingControl signals that the learner has mastered the current objective.
type TeachingControl struct {
	ObjectiveComplete bool `json:"objective_complete"`
}

// RecapControl signals that the prerequisite recap is finished.
type RecapControl struct {
	PrereqComplete bool `json:"prereq_complete"`
}

type ControlParseError struct {
	Raw string
	Err error
}

func (e *ControlParseError) Error() string {
	return fmt.Sprintf("control block JSON malformed: %v", e.Err)
}

func (e *ControlParseError) Unwrap() error { return e.Err }

type ControlValidationError struct {
	Reason string
}

func (e *ControlValidationError) Error() string {
	return fmt.Sprintf("control block failed validation: %s", e.Reason)
}

// ControlSchema is the minimal validation contract for a directive: which
// boolean keys are required, and no others allowed.
type ControlSchema struct {
	Title    string
	Required []string
}

// reflectControlSchema derives the schema from the directive struct itself,
// so the validated keys can never drift from the Go type.
func reflectControlSchema(v any) ControlSchema {
	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := reflector.Reflect(v)

	required := make([]string, 0, len(schema.Required))
	required = append(required, schema.Required...)
	return ControlSchema{Title: schema.Title, Required: required}
}

var (
	TeachingControlSchema = reflectControlSchema(&TeachingControl{})
	RecapControlSchema    = reflectControlSchema(&RecapControl{})
)

var controlBlockRe = regexp.MustCompile(`(?s)<control>\s*(\{.*?\})\s*</control>`)

// ControlDirective is the parsed directive payload; keys are task-specific
// booleans.
type ControlDirective map[string]bool

// ExtractControlBlock locates the delimited span amid surrounding prose,
// parses it and validates it against the schema. The second return value is
// false when the message carries no directive at all.
func ExtractControlBlock(assistantText string, schema ControlSchema) (ControlDirective, bool, error) {
	m := controlBlockRe.FindStringSubmatch(assistantText)
	if m == nil {
		return nil, false, nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(m[1]), &raw); err != nil {
		return nil, false, &ControlParseError{Raw: m[1], Err: err}
	}

	directive := ControlDirective{}
	for key, value := range raw {
		b, ok := value.(bool)
		if !ok {
			return nil, false, &ControlValidationError{Reason: fmt.Sprintf("key %q is not a boolean", key)}
		}
		if !lo.Contains(schema.Required, key) {
			return nil, false, &ControlValidationError{Reason: fmt.Sprintf("unexpected key %q", key)}
		}
		directive[key] = b
	}
	for _, key := range schema.Required {
		if _, ok := directive[key]; !ok {
			return nil, false, &ControlValidationError{Reason: fmt.Sprintf("missing required key %q", key)}
		}
	}

	return directive, true, nil
}

// controlInstruction renders the usage rule embedded in system prompts.
func controlInstruction(schema ControlSchema, example string, meaning string) string {
	return fmt.Sprintf(
		"When %s, include this exact block on its own line at the end of your message:\n<control>%s</control>\nDo not mention the control block to the learner. Emit it at most once, and only with the key %s.",
		meaning, example, schema.Required[0])
}

// StripControlBlock removes the directive wrapper before text is shown to
// the learner.
func StripControlBlock(assistantText string) string {
	return controlBlockRe.ReplaceAllString(assistantText, "")
}

