package sources

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// flexString decodes a JSON string, number or boolean as text. Upstream APIs
// are inconsistent about quoting amounts and identifiers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*s = flexString(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	if b {
		*s = "true"
	} else {
		*s = "false"
	}
	return nil
}

func (s flexString) String() string { return string(s) }

// multiText decodes the shapes multilingual fields come in: a string, a list of
// strings, or an object keyed by language whose values are strings or lists.
type multiText map[string][]string

func (m *multiText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*m = multiText{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		(*m)[""] = []string{v}
	case '[':
		var v []flexString
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		(*m)[""] = flexStrings(v)
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		for lang, val := range raw {
			var inner multiText
			if err := inner.UnmarshalJSON(val); err != nil {
				return err
			}
			(*m)[strings.ToLower(lang)] = inner.all()
		}
	default:
		var v flexString
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		(*m)[""] = []string{v.String()}
	}
	return nil
}

// pick returns the first value in the preferred languages, then in any language
// in sorted key order so the choice is stable.
func (m multiText) pick(preferred ...string) string {
	for _, lang := range preferred {
		if v := firstNonEmpty(m[lang]...); v != "" {
			return v
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := firstNonEmpty(m[k]...); v != "" {
			return v
		}
	}
	return ""
}

func (m multiText) all() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		out = append(out, m[k]...)
	}
	return out
}

func flexStrings(values []flexString) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
