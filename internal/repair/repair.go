// Package repair turns possibly malformed JSON text returned by language
// models into usable objects. Strategies escalate from stripping code fences
// to brace balancing, positional edits, partial extraction and finally a
// keyword heuristic that always produces a well-formed report.
package repair

import (
	"errors"
	"fmt"
	"strings"
)

// Method names the strategy that produced a Result.
type Method string

const (
	MethodEmpty      Method = "empty"
	MethodDirect     Method = "direct"
	MethodBalanced   Method = "balanced"
	MethodPositional Method = "positional"
	MethodPartial    Method = "partial_extraction"
	MethodHeuristic  Method = "keyword_heuristic"
)

const (
	DefaultCommaWindow     = 200
	DefaultPositionalSteps = 4
)

var (
	errEmptyResponse   = errors.New("empty response")
	errNoObject        = errors.New("no JSON object in response")
	errUnexpectedShape = errors.New("response is not a JSON object")
)

// Attempt records one parse attempt. Attempts are returned for diagnostics
// and never persisted.
type Attempt struct {
	Strategy   string
	Input      string
	Transforms []string
	OpenDepth  int
	OpenString bool
	OK         bool
	Err        error
}

// Result is the outcome of a repair. Value is never nil.
type Result struct {
	Value    interface{}
	Method   Method
	Err      error
	Attempts []Attempt
}

// Object returns Value as an object, or an empty object when Value is an array.
func (r Result) Object() map[string]interface{} {
	if m, ok := r.Value.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// Recovered reports whether anything beyond fence stripping was needed.
func (r Result) Recovered() bool {
	return r.Method != MethodDirect && r.Method != MethodEmpty
}

// Engine repairs model output. The zero value is not usable; use New.
type Engine struct {
	policy          KeywordPolicy
	commaWindow     int
	positionalSteps int
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy replaces the keyword policy used by the heuristic fallback.
func WithPolicy(p KeywordPolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithCommaWindow sets how far back a comma may be and still be preferred
// as the partial extraction cut point.
func WithCommaWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.commaWindow = n
		}
	}
}

// WithPositionalSteps bounds the number of positional edits.
func WithPositionalSteps(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.positionalSteps = n
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		policy:          DefaultKeywords,
		commaWindow:     DefaultCommaWindow,
		positionalSteps: DefaultPositionalSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = New()

// Repair parses raw with the default engine. It never panics and never
// returns nil: unrecoverable input yields an error descriptor object.
func Repair(raw string) interface{} {
	return defaultEngine.Repair(raw).Value
}

// Repair runs the structural strategies and falls back to an error
// descriptor object.
func (e *Engine) Repair(raw string) (res Result) {
	defer e.guard(&res, kindGeneric, raw, "")

	res = e.structural(raw)
	if res.Value != nil {
		return res
	}
	if errors.Is(res.Err, errNoObject) {
		res.Value = map[string]interface{}{}
		res.Method = MethodEmpty
		return res
	}
	res.Value = e.fallback(kindGeneric, raw, "", res.Err)
	res.Method = MethodHeuristic
	return res
}

// RepairTone repairs a tone report. When structural repair fails the report
// is synthesized from keyword signals in transcript; a partially recovered
// report gets its missing score and red flags the same way.
func (e *Engine) RepairTone(raw, transcript string) Result {
	return e.repairTyped(kindTone, raw, transcript)
}

// RepairContent repairs a content report; overall_score and red_flag are
// always present in the result.
func (e *Engine) RepairContent(raw, transcript string) Result {
	return e.repairTyped(kindContent, raw, transcript)
}

func (e *Engine) repairTyped(k reportKind, raw, transcript string) (res Result) {
	defer e.guard(&res, k, raw, transcript)

	res = e.structural(raw)
	obj, ok := res.Value.(map[string]interface{})
	if res.Method == MethodEmpty {
		ok, res.Err = false, errEmptyResponse
	}
	if !ok {
		if res.Value != nil && res.Err == nil {
			res.Err = fmt.Errorf("%w: got %T", errUnexpectedShape, res.Value)
		}
		if res.Err == nil {
			res.Err = errNoObject
		}
		res.Value = e.fallback(k, raw, transcript, res.Err)
		res.Method = MethodHeuristic
		return res
	}

	if e.fillRequired(k, obj, transcript) || res.Method == MethodPartial {
		obj[keyRecoveryInfo] = recoveryInfo(res.Method, res.Err, raw)
	}
	res.Value = obj
	return res
}

// guard keeps the never-panics contract if a strategy hits a bug.
func (e *Engine) guard(res *Result, k reportKind, raw, transcript string) {
	if r := recover(); r != nil {
		res.Err = fmt.Errorf("repair panicked: %v", r)
		res.Value = e.fallback(k, raw, transcript, res.Err)
		res.Method = MethodHeuristic
	}
}

// structural applies strategies 1-6. Value is nil when none succeeded.
func (e *Engine) structural(raw string) Result {
	var res Result

	if s := strings.TrimSpace(raw); s != "" {
		if v, err := parse(s); err == nil && isContainer(v) {
			res.record("direct", s, nil, true, nil)
			res.Value, res.Method = v, MethodDirect
			return res
		}
	}

	s := stripWrapping(raw)
	if s == "" {
		res.Value = map[string]interface{}{}
		res.Method = MethodEmpty
		return res
	}

	if v, err := parse(s); err == nil && isContainer(v) {
		res.record("direct", s, nil, true, nil)
		res.Value, res.Method = v, MethodDirect
		return res
	}

	cut, ok := cutToObject(s)
	if !ok {
		res.Err = errNoObject
		return res
	}

	norm, transforms := normalize(cut)
	closed, closeTransforms := closeFragment(norm)
	transforms = append(transforms, closeTransforms...)

	v, err := parse(closed)
	res.record("balanced", closed, transforms, err == nil, err)
	if err == nil {
		res.Value, res.Method = v, MethodBalanced
		return res
	}
	res.Err = err

	limit := len(norm)
	if off, ok := syntaxOffset(err, len(closed)); ok && off < limit {
		limit = off
	}

	if e.positionalSteps > 0 {
		v, fixed, perr := positional(closed, err, e.positionalSteps)
		res.record("positional", fixed, transforms, perr == nil, perr)
		if perr == nil {
			res.Value, res.Method = v, MethodPositional
			return res
		}
	}

	v, extracted, partialTransforms, perr := partial(norm, limit, e.commaWindow)
	res.record("partial_extraction", extracted, partialTransforms, perr == nil, perr)
	if perr == nil {
		res.Value, res.Method = v, MethodPartial
	}
	return res
}

func (r *Result) record(strategy, input string, transforms []string, ok bool, err error) {
	sr := scan(input)
	r.Attempts = append(r.Attempts, Attempt{
		Strategy:   strategy,
		Input:      input,
		Transforms: transforms,
		OpenDepth:  len(sr.Open),
		OpenString: sr.State != stateDefault,
		OK:         ok,
		Err:        err,
	})
}
