package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// GlobalErrorKey collects errors that are not tied to a field (blank keys in the API's errors map).
const GlobalErrorKey = "_global"

// Problem is the error body shape returned by any Top2000 API endpoint.
type Problem struct {
	Title   string              `json:"title,omitempty"`
	Message string              `json:"message,omitempty"`
	Detail  string              `json:"detail,omitempty"`
	TraceID string              `json:"traceId,omitempty"`
	Status  int                 `json:"status,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// ParseProblem decodes an API error body.
//
// A flat object whose values are all string arrays is read as an implicit errors map, even when a field
// shares a name with a problem member. Returns nil when body is not a JSON object or carries nothing
// recognizable.
func ParseProblem(body []byte) *Problem {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return nil
	}

	if errs, ok := decodeErrors(body, true); ok && len(errs) > 0 {
		return &Problem{Errors: errs}
	}

	p := &Problem{}
	found := false
	for key, dst := range map[string]*string{"title": &p.Title, "message": &p.Message, "detail": &p.Detail, "traceId": &p.TraceID} {
		if decodeString(raw[key], dst) {
			found = true
		}
	}
	if s, ok := raw["status"]; ok {
		if err := json.Unmarshal(s, &p.Status); err == nil {
			found = true
		}
	}
	if e, ok := raw["errors"]; ok {
		if errs, ok := decodeErrors(e, false); ok && len(errs) > 0 {
			p.Errors = errs
			found = true
		}
	}
	for k := range raw {
		if k == "type" || k == "instance" {
			found = true
		}
	}

	if !found {
		return nil
	}
	return p
}

// decodeString reports whether raw held a JSON string.
func decodeString(raw json.RawMessage, dst *string) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// decodeErrors reads a field -> messages map. With strict set every value must be an array of strings,
// otherwise single string values are accepted too.
func decodeErrors(data []byte, strict bool) (map[string][]string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}

	out := map[string][]string{}
	for key, value := range fields {
		var msgs []string
		if err := json.Unmarshal(value, &msgs); err != nil {
			if strict {
				return nil, false
			}
			var single string
			if err := json.Unmarshal(value, &single); err != nil {
				continue
			}
			msgs = []string{single}
		}

		if strings.TrimSpace(key) == "" {
			key = GlobalErrorKey
		}
		out[key] = append(out[key], msgs...)
	}
	return out, true
}

// Summary returns the most specific human readable message available.
func (p *Problem) Summary() string {
	if p == nil {
		return ""
	}
	for _, s := range []string{p.Detail, p.Message, p.Title} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	if msgs := p.Errors[GlobalErrorKey]; len(msgs) > 0 {
		return msgs[0]
	}

	keys := make([]string, 0, len(p.Errors))
	for k := range p.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(p.Errors[k]) > 0 {
			return fmt.Sprintf("%s: %s", k, p.Errors[k][0])
		}
	}
	return ""
}

// Error implements error so a Problem can be wrapped and returned.
func (p *Problem) Error() string {
	if s := p.Summary(); s != "" {
		return s
	}
	return "request failed"
}

// FieldErrors returns the messages recorded for field.
func (p *Problem) FieldErrors(field string) []string {
	if p == nil {
		return nil
	}
	return p.Errors[field]
}
