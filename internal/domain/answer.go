package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Answer holds the acceptable phrasings of an expected answer. Each variant is a sentence;
// tokenized forms from the script are joined with single spaces.
//
// On the wire an answer is a string, a string array or an array of string arrays. A string array
// whose entries contain whitespace is a list of sentence variants, otherwise it is one tokenized sentence.
type Answer struct {
	Variants []string
}

// NewAnswer builds an answer from sentence variants.
func NewAnswer(variants ...string) Answer {
	return Answer{Variants: variants}
}

// IsEmpty reports whether no variant was declared.
func (a Answer) IsEmpty() bool {
	for _, v := range a.Variants {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// First returns the first variant or "".
func (a Answer) First() string {
	if len(a.Variants) == 0 {
		return ""
	}
	return a.Variants[0]
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		a.Variants = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.Variants = []string{s}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("answer: expected string or array: %w", err)
	}
	strs, nested, err := splitUnion(items)
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	if !nested {
		if anyContainsSpace(strs) {
			a.Variants = strs
		} else {
			a.Variants = []string{strings.Join(strs, " ")}
		}
		return nil
	}

	a.Variants = make([]string, 0, len(items))
	for _, item := range items {
		tokens, err := decodeStrings(item)
		if err != nil {
			return fmt.Errorf("answer: %w", err)
		}
		a.Variants = append(a.Variants, strings.Join(tokens, " "))
	}
	return nil
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch len(a.Variants) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(a.Variants[0])
	}
	// Nested form: a flat array of single words would decode as one tokenized sentence.
	nested := make([][]string, len(a.Variants))
	for i, v := range a.Variants {
		nested[i] = []string{v}
	}
	return json.Marshal(nested)
}

// RequiredWords lists the mandatory, order-sensitive phrases of an answer. Sets is either one shared
// set or one set per answer variant.
type RequiredWords struct {
	Sets [][]string
}

// NewRequiredWords builds a single shared set of required phrases.
func NewRequiredWords(phrases ...string) RequiredWords {
	if len(phrases) == 0 {
		return RequiredWords{}
	}
	return RequiredWords{Sets: [][]string{phrases}}
}

// ForVariant returns the required phrases paired with variant i of variantCount.
// A single set is broadcast to every variant.
func (r RequiredWords) ForVariant(i, variantCount int) []string {
	switch {
	case len(r.Sets) == 0:
		return nil
	case len(r.Sets) == variantCount && i < len(r.Sets):
		return r.Sets[i]
	default:
		return r.Sets[0]
	}
}

func (r *RequiredWords) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		r.Sets = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		r.Sets = [][]string{{s}}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("requiredWords: expected string or array: %w", err)
	}
	strs, nested, err := splitUnion(items)
	if err != nil {
		return fmt.Errorf("requiredWords: %w", err)
	}
	if !nested {
		if len(strs) == 0 {
			r.Sets = nil
			return nil
		}
		r.Sets = [][]string{strs}
		return nil
	}

	r.Sets = make([][]string, 0, len(items))
	for _, item := range items {
		set, err := decodeStrings(item)
		if err != nil {
			return fmt.Errorf("requiredWords: %w", err)
		}
		r.Sets = append(r.Sets, set)
	}
	return nil
}

func (r RequiredWords) MarshalJSON() ([]byte, error) {
	switch len(r.Sets) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(r.Sets[0])
	}
	return json.Marshal(r.Sets)
}

// splitUnion decodes a JSON array whose items are strings or string arrays.
// nested is true when at least one item is an array.
func splitUnion(items []json.RawMessage) (strs []string, nested bool, err error) {
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '[' {
			nested = true
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, false, fmt.Errorf("array items must be strings or string arrays: %w", err)
		}
		strs = append(strs, s)
	}
	return strs, nested, nil
}

func decodeStrings(item json.RawMessage) ([]string, error) {
	item = bytes.TrimSpace(item)
	if len(item) > 0 && item[0] == '"' {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	var out []string
	if err := json.Unmarshal(item, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func anyContainsSpace(items []string) bool {
	for _, s := range items {
		if strings.ContainsAny(strings.TrimSpace(s), " \t\u00a0") {
			return true
		}
	}
	return false
}
