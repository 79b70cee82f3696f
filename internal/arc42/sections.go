package arc42

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PreambleKey holds text before the first recognized heading in debug mode.
const PreambleKey = "preamble"

// Section is one extracted chapter.
type Section struct {
	Key  string
	Body string
}

// Sections is an ordered mapping from canonical key to body. Order is
// document order. It encodes as a JSON object that keeps that order.
type Sections []Section

// Get returns the body stored under key.
func (s Sections) Get(key string) (string, bool) {
	for _, sec := range s {
		if sec.Key == key {
			return sec.Body, true
		}
	}
	return "", false
}

// Set replaces the body under key in place, or appends a new section.
func (s *Sections) Set(key, body string) {
	for i := range *s {
		if (*s)[i].Key == key {
			(*s)[i].Body = body
			return
		}
	}
	*s = append(*s, Section{Key: key, Body: body})
}

// Keys returns the section keys in order.
func (s Sections) Keys() []string {
	keys := make([]string, 0, len(s))
	for _, sec := range s {
		keys = append(keys, sec.Key)
	}
	return keys
}

// Map returns the sections as a plain map.
func (s Sections) Map() map[string]string {
	m := make(map[string]string, len(s))
	for _, sec := range s {
		m[sec.Key] = sec.Body
	}
	return m
}

// Ordered returns the sections sorted by the given key order. Keys missing
// from order keep their relative position after the ordered ones.
func (s Sections) Ordered(order []string) Sections {
	var out Sections
	used := make(map[string]bool, len(s))
	for _, key := range order {
		if body, ok := s.Get(key); ok && !used[key] {
			out = append(out, Section{Key: key, Body: body})
			used[key] = true
		}
	}
	for _, sec := range s {
		if !used[sec.Key] {
			out = append(out, sec)
		}
	}
	return out
}

// MarshalJSON encodes the sections as an object in insertion order. Bodies
// are written without HTML escaping.
func (s Sections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, sec := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(sec.Key); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(':')
		if err := enc.Encode(sec.Body); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping the order of its keys. An empty
// object decodes to nil sections.
func (s *Sections) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("arc42 sections: expected object, got %v", tok)
	}

	var out Sections
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("arc42 sections: expected string key, got %v", keyTok)
		}
		var body string
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("arc42 sections: value of %q: %w", key, err)
		}
		out.Set(key, body)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = out
	return nil
}
