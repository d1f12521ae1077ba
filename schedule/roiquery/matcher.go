// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Package roiquery provides a terminal record-matching ltl.Operator,
// adapted from schedviz's tracepoint matcher: where that package matches
// ltl queries against trace.Event, this one matches them against
// record.Record, so a region of interest can be declared as an LTL
// formula over record fields ("record.marker=7" for a SYSCALL marker,
// "record.tid=$t"; attribute values are integers)
// rather than only as an explicit instruction Region.
package roiquery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ilhamster/ltl/pkg/binder"
	be "github.com/ilhamster/ltl/pkg/bindingenvironment"
	"github.com/ilhamster/ltl/pkg/bindings"
	"github.com/ilhamster/ltl/pkg/ltl"

	"github.com/google/tracesched/record"
)

// Field names a record.Record attribute a query may reference.
const (
	Kind        = "kind"
	TID         = "tid"
	PID         = "pid"
	Marker      = "marker"
	MarkerValue = "marker_value"
	PC          = "pc"
	Addr        = "addr"
	IsWrite     = "is_write"
)

var (
	matchExprRe    = regexp.MustCompile(`^(?:(.+)=(.+))|(?:\$(\w+)<-(.+))$`)
	fieldNamesRe   = regexp.MustCompile(`^record\.(kind|tid|pid|marker|marker_value|pc|addr|is_write)$`)
	extractFieldRe = regexp.MustCompile(`^record\.(\w+)$`)
)

// RecordToken wraps the index of a record.Record within a Log in order to
// implement ltl.Token and ltl.Operator's matching contract.
type RecordToken int

// EOI (end of input) is always false: a live scheduler run has no known
// end until the underlying shard says otherwise.
func (t RecordToken) EOI() bool { return false }

func (t RecordToken) String() string { return strconv.Itoa(int(t)) }

// Log is the indexable record history a RecordMatcher looks tokens up
// against, populated by the caller as records are delivered. The schedule
// package does not itself build or consult a Log.
type Log struct {
	records []record.Record
}

// Append records r as the next entry of the log and returns the
// RecordToken referencing it.
func (l *Log) Append(r record.Record) RecordToken {
	l.records = append(l.records, r)
	return RecordToken(len(l.records) - 1)
}

// At returns the record at index i.
func (l *Log) At(i int) (record.Record, error) {
	if i < 0 || i >= len(l.records) {
		return record.Invalid, fmt.Errorf("roiquery: index %d out of range (log has %d records)", i, len(l.records))
	}
	return l.records[i], nil
}

// RecordMatcher is a record-matching ltl.Operator.
type RecordMatcher struct {
	sourceInput  string
	log          *Log
	matching     func(r record.Record) bool
	extractToken func(name string, tok ltl.Token) (*bindings.Bindings, error)
}

func (rm RecordMatcher) String() string { return fmt.Sprintf("[%s]", rm.sourceInput) }

// Reducible returns true for all RecordMatchers.
func (rm RecordMatcher) Reducible() bool { return true }

func fieldValue(r record.Record, name string) (int64, bool) {
	switch name {
	case Kind:
		return int64(r.Kind), true
	case TID:
		return r.TID, true
	case PID:
		return r.PID, true
	case Marker:
		return int64(r.Marker), true
	case MarkerValue:
		return int64(r.MarkerValue), true
	case PC:
		return int64(r.PC), true
	case Addr:
		return int64(r.Addr), true
	case IsWrite:
		if r.IsWrite {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func newAttributeMatcher(log *Log, rm *RecordMatcher, lhs, rhs string) (*RecordMatcher, error) {
	if !fieldNamesRe.MatchString(lhs) {
		return nil, fmt.Errorf("roiquery: invalid attribute %q", lhs)
	}
	name := extractFieldRe.FindStringSubmatch(lhs)[1]

	want, err := strconv.ParseInt(rhs, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("roiquery: attribute %q expects an integer value, got %q", name, rhs)
	}
	rm.matching = func(r record.Record) bool {
		got, ok := fieldValue(r, name)
		return ok && got == want
	}
	return rm, nil
}

func attachTokenExtractor(rm *RecordMatcher, log *Log, name string) (*RecordMatcher, error) {
	if !fieldValueName(name) {
		return nil, fmt.Errorf("roiquery: invalid attribute %q in binding reference", name)
	}
	rm.extractToken = func(bindName string, tok ltl.Token) (*bindings.Bindings, error) {
		rtok, ok := tok.(RecordToken)
		if !ok {
			return nil, fmt.Errorf("roiquery: got token of type %T, want RecordToken", tok)
		}
		r, err := log.At(int(rtok))
		if err != nil {
			return nil, err
		}
		v, _ := fieldValue(r, name)
		return bindings.New(bindings.Int(bindName, int(v)))
	}
	return rm, nil
}

func fieldValueName(name string) bool {
	switch name {
	case Kind, TID, PID, Marker, MarkerValue, PC, Addr, IsWrite:
		return true
	default:
		return false
	}
}

func newBindingBind(log *Log, rm *RecordMatcher, bindingName, bindingValue string) (ltl.Operator, error) {
	if !fieldNamesRe.MatchString(bindingValue) {
		return nil, fmt.Errorf("roiquery: invalid binding value %q", bindingValue)
	}
	name := extractFieldRe.FindStringSubmatch(bindingValue)[1]
	rm, err := attachTokenExtractor(rm, log, name)
	if err != nil {
		return nil, err
	}
	return binder.NewBuilder(true, rm.extractToken).Bind(bindingName), nil
}

func newBindingReference(log *Log, rm *RecordMatcher, attributeQuery, attributeValue string) (ltl.Operator, error) {
	if !fieldNamesRe.MatchString(attributeQuery) {
		return nil, fmt.Errorf("roiquery: invalid attribute %q", attributeQuery)
	}
	name := extractFieldRe.FindStringSubmatch(attributeQuery)[1]
	rm, err := attachTokenExtractor(rm, log, name)
	if err != nil {
		return nil, err
	}
	return binder.NewBuilder(true, rm.extractToken).Reference(strings.TrimPrefix(attributeValue, "$")), nil
}

func newMatcherFromString(log *Log, s string) (ltl.Operator, error) {
	if !matchExprRe.MatchString(s) {
		return nil, fmt.Errorf("roiquery: expected 'record.field=value' or '$name<-record.field', got %q", s)
	}
	captures := matchExprRe.FindStringSubmatch(s)
	attrLHS, attrRHS := captures[1], captures[2]
	bindLHS, bindRHS := captures[3], captures[4]

	rm := &RecordMatcher{sourceInput: s, log: log}

	if attrLHS != "" && attrRHS != "" && !strings.HasPrefix(attrRHS, "$") {
		return newAttributeMatcher(log, rm, attrLHS, attrRHS)
	}
	if attrLHS != "" && attrRHS != "" {
		return newBindingReference(log, rm, attrLHS, attrRHS)
	}
	return newBindingBind(log, rm, bindLHS, bindRHS)
}

func (rm *RecordMatcher) matchInternal(rtok RecordToken) (ltl.Operator, ltl.Environment) {
	if rm == nil {
		return nil, be.New(be.Matching(false))
	}
	r, err := rm.log.At(int(rtok))
	if err != nil {
		return nil, ltl.ErrEnv(err)
	}
	matching := rm.matching(r)
	return nil, be.New(be.Matching(matching), be.Captured(rtok))
}

// Match performs an LTL match on the receiving RecordMatcher.
func (rm *RecordMatcher) Match(tok ltl.Token) (ltl.Operator, ltl.Environment) {
	rtok, ok := tok.(RecordToken)
	if !ok {
		return nil, ltl.ErrEnv(fmt.Errorf("roiquery: got token of type %T, want RecordToken", tok))
	}
	return rm.matchInternal(rtok)
}

// Generator returns a generator function producing RecordMatchers against
// log, suitable for passing to an ltl query parser.
func Generator(log *Log) func(s string) (ltl.Operator, error) {
	return func(s string) (ltl.Operator, error) {
		return newMatcherFromString(log, s)
	}
}
