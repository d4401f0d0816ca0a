//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

// Package quality evaluates data quality rulesets written in a subset of
// DQDL over mapped records and publishes the results.
package quality

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// RuleType names a DQDL rule.
type RuleType string

const (
	RuleColumnCount  RuleType = "ColumnCount"
	RuleRowCount     RuleType = "RowCount"
	RuleIsComplete   RuleType = "IsComplete"
	RuleColumnExists RuleType = "ColumnExists"
	RuleCompleteness RuleType = "Completeness"
)

// ruleShapes lists, per rule type, whether it takes a column argument and a
// threshold condition.
var ruleShapes = map[RuleType]struct{ column, condition bool }{
	RuleColumnCount:  {column: false, condition: true},
	RuleRowCount:     {column: false, condition: true},
	RuleIsComplete:   {column: true, condition: false},
	RuleColumnExists: {column: true, condition: false},
	RuleCompleteness: {column: true, condition: true},
}

// Operator compares a metric to a threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpBetween      Operator = "between"
)

// Condition is a threshold such as "> 0" or "between 0.9 and 1.0".
type Condition struct {
	Op    Operator
	Value float64
	Upper float64 // upper bound for between
}

// Matches reports whether v satisfies the condition. Between is exclusive
// on both ends.
func (c Condition) Matches(v float64) bool {
	switch c.Op {
	case OpGreater:
		return v > c.Value
	case OpGreaterEqual:
		return v >= c.Value
	case OpLess:
		return v < c.Value
	case OpLessEqual:
		return v <= c.Value
	case OpEqual:
		return v == c.Value
	case OpNotEqual:
		return v != c.Value
	case OpBetween:
		return v > c.Value && v < c.Upper
	default:
		return false
	}
}

func (c Condition) String() string {
	if c.Op == OpBetween {
		return fmt.Sprintf("between %s and %s", formatNumber(c.Value), formatNumber(c.Upper))
	}
	return string(c.Op) + " " + formatNumber(c.Value)
}

// Rule is one parsed DQDL rule.
type Rule struct {
	Type      RuleType
	Column    string
	Condition *Condition
}

// RowLevel reports whether the rule is checked against every record.
func (r Rule) RowLevel() bool {
	switch r.Type {
	case RuleColumnCount, RuleIsComplete, RuleColumnExists:
		return true
	}
	return false
}

// String renders the rule in canonical DQDL form.
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(string(r.Type))
	if r.Column != "" {
		b.WriteString(" ")
		b.WriteString(strconv.Quote(r.Column))
	}
	if r.Condition != nil {
		b.WriteString(" ")
		b.WriteString(r.Condition.String())
	}
	return b.String()
}

// Ruleset is a parsed DQDL document.
type Ruleset struct {
	Text  string
	Rules []Rule
}

// ParseError reports a DQDL syntax error at a byte offset.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dqdl: position %d: %s", e.Pos, e.Msg)
}

// ParseRuleset parses "Rules = [ rule, rule, ... ]".
func ParseRuleset(text string) (*Ruleset, error) {
	p := &parser{src: text}
	if err := p.next(); err != nil {
		return nil, err
	}

	if err := p.expectIdent("Rules"); err != nil {
		return nil, err
	}
	if err := p.expect(tokEquals, "="); err != nil {
		return nil, err
	}
	if err := p.expect(tokLBracket, "["); err != nil {
		return nil, err
	}

	rs := &Ruleset{Text: text}
	for {
		rule, err := p.parseRule()
		if err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, rule)

		if p.tok.kind == tokComma {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.expect(tokRBracket, "]"); err != nil {
			return nil, err
		}
		break
	}

	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q after ruleset", p.tok.text)
	}
	return rs, nil
}

// MustParseRuleset is like ParseRuleset but panics on error.
func MustParseRuleset(text string) *Ruleset {
	rs, err := ParseRuleset(text)
	if err != nil {
		panic(err)
	}
	return rs
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOperator
	tokEquals
	tokComma
	tokLBracket
	tokRBracket
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type parser struct {
	src string
	off int
	tok token
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Pos: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind, text string) error {
	if p.tok.kind != kind {
		return p.errorf("expected %q, found %s", text, p.describe())
	}
	return p.next()
}

func (p *parser) expectIdent(name string) error {
	if p.tok.kind != tokIdent || p.tok.text != name {
		return p.errorf("expected %q, found %s", name, p.describe())
	}
	return p.next()
}

func (p *parser) describe() string {
	if p.tok.kind == tokEOF {
		return "end of input"
	}
	return strconv.Quote(p.tok.text)
}

func (p *parser) parseRule() (Rule, error) {
	if p.tok.kind != tokIdent {
		return Rule{}, p.errorf("expected rule type, found %s", p.describe())
	}
	rt := RuleType(p.tok.text)
	shape, ok := ruleShapes[rt]
	if !ok {
		return Rule{}, p.errorf("unsupported rule type %q", p.tok.text)
	}
	if err := p.next(); err != nil {
		return Rule{}, err
	}

	rule := Rule{Type: rt}
	if shape.column {
		if p.tok.kind != tokString {
			return Rule{}, p.errorf("%s expects a quoted column name, found %s", rt, p.describe())
		}
		rule.Column = p.tok.text
		if err := p.next(); err != nil {
			return Rule{}, err
		}
	}
	if shape.condition {
		cond, err := p.parseCondition()
		if err != nil {
			return Rule{}, err
		}
		rule.Condition = &cond
	}
	return rule, nil
}

func (p *parser) parseCondition() (Condition, error) {
	var cond Condition
	switch {
	case p.tok.kind == tokOperator:
		cond.Op = Operator(p.tok.text)
	case p.tok.kind == tokEquals:
		cond.Op = OpEqual
	case p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, "between"):
		cond.Op = OpBetween
	default:
		return cond, p.errorf("expected comparison, found %s", p.describe())
	}
	if err := p.next(); err != nil {
		return cond, err
	}

	v, err := p.parseNumber()
	if err != nil {
		return cond, err
	}
	cond.Value = v

	if cond.Op == OpBetween {
		if p.tok.kind != tokIdent || !strings.EqualFold(p.tok.text, "and") {
			return cond, p.errorf("expected \"and\", found %s", p.describe())
		}
		if err := p.next(); err != nil {
			return cond, err
		}
		if cond.Upper, err = p.parseNumber(); err != nil {
			return cond, err
		}
		if cond.Upper < cond.Value {
			return cond, p.errorf("between bounds are reversed")
		}
	}
	return cond, nil
}

func (p *parser) parseNumber() (float64, error) {
	if p.tok.kind != tokNumber {
		return 0, p.errorf("expected number, found %s", p.describe())
	}
	v, err := strconv.ParseFloat(p.tok.text, 64)
	if err != nil {
		return 0, p.errorf("invalid number %q", p.tok.text)
	}
	return v, p.next()
}

// next scans the following token into p.tok.
func (p *parser) next() error {
	for p.off < len(p.src) && unicode.IsSpace(rune(p.src[p.off])) {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return nil
	}

	c := p.src[p.off]
	switch {
	case c == '[':
		p.off++
		p.tok = token{kind: tokLBracket, text: "[", pos: start}
	case c == ']':
		p.off++
		p.tok = token{kind: tokRBracket, text: "]", pos: start}
	case c == ',':
		p.off++
		p.tok = token{kind: tokComma, text: ",", pos: start}
	case c == '=':
		p.off++
		p.tok = token{kind: tokEquals, text: "=", pos: start}
	case c == '>' || c == '<' || c == '!':
		p.off++
		if p.off < len(p.src) && p.src[p.off] == '=' {
			p.off++
		}
		text := p.src[start:p.off]
		if text == "!" {
			p.tok = token{pos: start}
			return &ParseError{Pos: start, Msg: "unexpected \"!\""}
		}
		p.tok = token{kind: tokOperator, text: text, pos: start}
	case c == '"':
		p.off++
		var b strings.Builder
		for {
			if p.off >= len(p.src) {
				return &ParseError{Pos: start, Msg: "unterminated string"}
			}
			ch := p.src[p.off]
			if ch == '\\' && p.off+1 < len(p.src) {
				b.WriteByte(p.src[p.off+1])
				p.off += 2
				continue
			}
			p.off++
			if ch == '"' {
				break
			}
			b.WriteByte(ch)
		}
		p.tok = token{kind: tokString, text: b.String(), pos: start}
	case c == '-' || c == '.' || (c >= '0' && c <= '9'):
		p.off++
		for p.off < len(p.src) && strings.IndexByte("0123456789.eE+-", p.src[p.off]) >= 0 {
			p.off++
		}
		p.tok = token{kind: tokNumber, text: p.src[start:p.off], pos: start}
	case c == '_' || unicode.IsLetter(rune(c)):
		for p.off < len(p.src) && (p.src[p.off] == '_' || unicode.IsLetter(rune(p.src[p.off])) || unicode.IsDigit(rune(p.src[p.off]))) {
			p.off++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.off], pos: start}
	default:
		return &ParseError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", c)}
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
