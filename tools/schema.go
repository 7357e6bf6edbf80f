package tools

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"sort"
	"strings"
)

// Validate checks raw JSON arguments against the definition and returns
// them as typed Params. Failures are *InvalidParametersError.
func (d Definition) Validate(raw json.RawMessage) (Params, error) {
	invalid := func(field, reason string) error {
		return &InvalidParametersError{Tool: d.Name, Field: field, Reason: reason}
	}

	args := map[string]interface{}{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return nil, invalid("", "arguments must be a JSON object")
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, invalid("", "unexpected data after arguments")
		}
	}

	known := make(map[string]struct{}, len(d.Params))
	for _, p := range d.Params {
		known[p.Name] = struct{}{}
	}
	var unknown []string
	for name := range args {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, invalid(unknown[0], "unknown parameter")
	}

	params := make(Params, len(d.Params))
	for _, p := range d.Params {
		value, present := args[p.Name]
		if !present || value == nil {
			if p.Required {
				return nil, invalid(p.Name, "required parameter missing")
			}
			continue
		}

		switch p.Type {
		case TypeString:
			s, ok := value.(string)
			if !ok {
				return nil, invalid(p.Name, "expected a string")
			}
			if strings.TrimSpace(s) == "" {
				if p.Required {
					return nil, invalid(p.Name, "must not be empty")
				}
				continue
			}
			params[p.Name] = s
		case TypeInteger:
			n, ok := toInt(value)
			if !ok {
				return nil, invalid(p.Name, "expected an integer")
			}
			params[p.Name] = n
		default:
			params[p.Name] = value
		}
	}
	return params, nil
}

// toInt accepts integral JSON numbers in the int32 range, including forms like 2.0.
func toInt(v interface{}) (int, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := num.Int64(); err == nil {
		if i < math.MinInt32 || i > math.MaxInt32 {
			return 0, false
		}
		return int(i), true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
