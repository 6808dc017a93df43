// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package edit defines the edit specification types produced by the proposal
// generator and the engine that applies a single specification to in-memory
// text.
//
// An EditSpec is a tagged union: it carries exactly one of an exact-string
// matcher or a regex matcher. The union shape is enforced when the spec is
// decoded, so downstream code never sees a half-formed edit.
//
// Thread Safety:
//
//	Specs and Packages are immutable after decoding. Apply is a pure
//	function. Everything here is safe for concurrent use.
package edit

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/evolve/pkg/validation"
)

// Matcher is the sealed matcher side of the EditSpec tagged union.
// The two implementations are Exact and Regex.
type Matcher interface {
	isMatcher()
}

// Exact replaces the first literal occurrence of Match with Replace.
type Exact struct {
	// Match is the literal text to find. Regex metacharacters have no
	// special meaning.
	Match string

	// Replace is the literal replacement text.
	Replace string
}

func (Exact) isMatcher() {}

// Regex replaces the first match of Pattern with the expansion of Template.
type Regex struct {
	// Pattern is compiled with multi-line semantics: ^ and $ match at
	// line boundaries.
	Pattern string

	// Template is the replacement template. Capture groups are referenced
	// with $1, $2, or ${name}.
	Template string
}

func (Regex) isMatcher() {}

// Spec is one find/replace instruction targeting a single file.
type Spec struct {
	// Path is the repository-relative path of the target file.
	Path string

	// LineHint is an advisory 1-based line number near the expected match.
	// It is never authoritative; zero means no hint.
	LineHint int

	// Matcher is the exact or regex matcher. Never nil after decoding.
	Matcher Matcher
}

// Package is a named batch of one or more Specs applied as one logical,
// single-commit change.
type Package struct {
	Area      string `validate:"required"`
	GoalTag   string `validate:"required"`
	Rationale string `validate:"required"`
	Edits     []Spec `validate:"required,min=1"`
}

// packageWire is the JSON shape emitted by the proposal generator.
type packageWire struct {
	Area      string     `json:"area"`
	GoalTag   string     `json:"goal_tag"`
	Rationale string     `json:"rationale"`
	Edits     []specWire `json:"edits"`
}

type specWire struct {
	Path             string  `json:"path"`
	Match            *string `json:"match,omitempty"`
	Replace          *string `json:"replace,omitempty"`
	MatchRe          *string `json:"match_re,omitempty"`
	GroupReplacement *string `json:"group_replacement,omitempty"`
	LineNumberHint   int     `json:"line_number_hint,omitempty"`
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// DecodePackage parses and validates an EditPackage from its JSON wire form.
//
// # Description
//
//	Decoding enforces the full package shape before anything touches disk:
//	all four top-level fields present, a non-empty edit list, and for every
//	edit a valid repository-relative path plus exactly one matcher kind
//	(match/replace or match_re/group_replacement; both or neither is
//	invalid).
//
// # Inputs
//
//   - data: Raw JSON bytes from the proposal generator.
//
// # Outputs
//
//   - *Package: The decoded package. Nil on error.
//   - error: ErrDecode for malformed JSON, ErrValidation for shape violations.
func DecodePackage(data []byte) (*Package, error) {
	var wire packageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return packageFromWire(wire)
}

func packageFromWire(wire packageWire) (*Package, error) {
	pkg := &Package{
		Area:      wire.Area,
		GoalTag:   wire.GoalTag,
		Rationale: wire.Rationale,
	}

	for i, ew := range wire.Edits {
		spec, err := specFromWire(ew)
		if err != nil {
			return nil, fmt.Errorf("%w: edit %d: %v", ErrValidation, i, err)
		}
		pkg.Edits = append(pkg.Edits, spec)
	}

	if err := structValidator.Struct(pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return pkg, nil
}

func specFromWire(w specWire) (Spec, error) {
	path, err := validation.SanitizeRelPath(w.Path)
	if err != nil {
		return Spec{}, err
	}

	hasExact := w.Match != nil || w.Replace != nil
	hasRegex := w.MatchRe != nil || w.GroupReplacement != nil

	switch {
	case hasExact && hasRegex:
		return Spec{}, fmt.Errorf("edit for %q carries both matcher kinds", path)
	case hasExact:
		if w.Match == nil || w.Replace == nil {
			return Spec{}, fmt.Errorf("edit for %q needs both match and replace", path)
		}
		return Spec{
			Path:     path,
			LineHint: w.LineNumberHint,
			Matcher:  Exact{Match: *w.Match, Replace: *w.Replace},
		}, nil
	case hasRegex:
		if w.MatchRe == nil || w.GroupReplacement == nil {
			return Spec{}, fmt.Errorf("edit for %q needs both match_re and group_replacement", path)
		}
		return Spec{
			Path:     path,
			LineHint: w.LineNumberHint,
			Matcher:  Regex{Pattern: *w.MatchRe, Template: *w.GroupReplacement},
		}, nil
	default:
		return Spec{}, fmt.Errorf("edit for %q carries no matcher", path)
	}
}

// Validate re-checks a programmatically constructed Package against the same
// rules DecodePackage enforces.
func (p *Package) Validate() error {
	if err := structValidator.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	for i, s := range p.Edits {
		if err := validation.ValidateRelPath(s.Path); err != nil {
			return fmt.Errorf("%w: edit %d: %v", ErrValidation, i, err)
		}
		if s.Matcher == nil {
			return fmt.Errorf("%w: edit %d carries no matcher", ErrValidation, i)
		}
	}
	return nil
}
