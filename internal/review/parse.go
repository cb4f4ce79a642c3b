package review

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/metalagman/quorum/internal/llm"
	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON schema a reviewer response must satisfy.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "passed": { "type": "boolean" },
    "comments": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "severity": { "type": "string", "enum": ["blocker", "major", "minor"] },
          "section": { "type": "string" },
          "comment": { "type": "string" },
          "suggestion": { "type": ["string", "null"] }
        },
        "required": ["severity", "section", "comment"]
      }
    },
    "checkboxes": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": { "type": "string" },
          "label": { "type": "string" },
          "status": { "type": "string", "enum": ["true", "false", "partial"] },
          "rationale": { "type": "string" },
          "evidence": { "type": "array" }
        },
        "required": ["id", "label", "status", "rationale"]
      }
    }
  },
  "required": ["passed", "comments", "checkboxes"]
}`

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// ParseError reports a reviewer response that is not a valid result.
type ParseError struct {
	Problems []string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse review: " + e.Err.Error()
	}
	return "invalid review: " + strings.Join(e.Problems, "; ")
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes and validates a reviewer response. When the raw text is not
// valid, the first JSON object embedded in it is tried instead.
func Parse(raw string) (Result, error) {
	res, err := parseStrict(raw)
	if err == nil {
		return res, nil
	}
	if extracted, ok := llm.ExtractJSON(raw); ok && extracted != strings.TrimSpace(raw) {
		if res, err2 := parseStrict(extracted); err2 == nil {
			return res, nil
		}
	}
	return Result{}, err
}

func parseStrict(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if !json.Valid([]byte(raw)) {
		return Result{}, &ParseError{Err: fmt.Errorf("response is not valid JSON")}
	}
	out, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return Result{}, &ParseError{Err: err}
	}
	if !out.Valid() {
		problems := make([]string, 0, len(out.Errors()))
		for _, e := range out.Errors() {
			problems = append(problems, e.String())
		}
		sort.Strings(problems)
		return Result{}, &ParseError{Problems: problems}
	}

	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return Result{}, &ParseError{Err: err}
	}
	if res.Comments == nil {
		res.Comments = []Comment{}
	}
	if res.Checkboxes == nil {
		res.Checkboxes = []Checkbox{}
	}
	res.Source = SourceModel
	return res, nil
}
