package expr

import (
	"fmt"
	"strings"
)

// SyntaxError reports an expression that does not parse.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("expression %q: %s at offset %d", e.Expr, e.Msg, e.Pos)
}

// Evaluator compiles expressions with optional custom operators.
type Evaluator struct {
	customOps map[string]BinaryOp
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCustomOperator registers a custom binary operator.
// The operator name should not conflict with built-in operators.
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(e *Evaluator) {
		if e.customOps == nil {
			e.customOps = make(map[string]BinaryOp)
		}
		e.customOps[name] = fn
	}
}

// New creates a new Evaluator with the given options.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEvaluator = New()

// Compile parses src with the default evaluator.
func Compile(src string) (*Expr, error) {
	return defaultEvaluator.Compile(src)
}

// Eval compiles and evaluates src in one step.
func Eval(src string, vars Vars) (bool, error) {
	x, err := Compile(src)
	if err != nil {
		return false, err
	}
	return x.Eval(vars), nil
}

// Compile parses src.
func (e *Evaluator) Compile(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Expr: src, Msg: "empty expression"}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks, ops: e.customOps}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", t)
	}
	return &Expr{src: src, root: root}, nil
}

// Expr is a compiled condition. It is safe for concurrent use.
type Expr struct {
	src  string
	root node
}

// String returns the source text.
func (x *Expr) String() string { return x.src }

// Eval evaluates the condition. A nil vars resolves every path to null.
func (x *Expr) Eval(vars Vars) bool {
	return IsTruthy(x.root.eval(vars))
}

type node interface {
	eval(vars Vars) any
}

type literal struct{ v any }

func (n literal) eval(Vars) any { return n.v }

type path struct{ name string }

func (n path) eval(vars Vars) any {
	if vars == nil {
		return nil
	}
	v, _ := vars.Get(n.name)
	return v
}

type negation struct{ x node }

func (n negation) eval(vars Vars) any { return !IsTruthy(n.x.eval(vars)) }

type logical struct {
	and  bool
	l, r node
}

func (n logical) eval(vars Vars) any {
	l := IsTruthy(n.l.eval(vars))
	if n.and {
		return l && IsTruthy(n.r.eval(vars))
	}
	return l || IsTruthy(n.r.eval(vars))
}

type binary struct {
	fn   BinaryOp
	l, r node
}

func (n binary) eval(vars Vars) any { return n.fn(n.l.eval(vars), n.r.eval(vars)) }

type parser struct {
	src  string
	toks []token
	i    int
	ops  map[string]BinaryOp
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Expr: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isWord(text string) bool {
	t := p.peek()
	return t.kind == tokWord && t.text == text
}

func (p *parser) parseOr() (node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isWord("or") {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = logical{and: false, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isWord("and") {
		p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = logical{and: true, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (node, error) {
	if t := p.peek(); p.isWord("not") || (t.kind == tokOp && t.text == "!") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negation{x}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (node, error) {
	l, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	var fn BinaryOp
	switch t.kind {
	case tokOp:
		fn = builtins[t.text]
	case tokWord:
		if t.text == "contains" {
			fn = builtins[t.text]
		} else {
			fn = p.ops[t.text]
		}
	}
	if fn == nil {
		return l, nil
	}
	p.next()
	r, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return binary{fn: fn, l: l, r: r}, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, p.errorf(c, "expected ')', got %s", c)
		}
		return n, nil
	case tokString:
		return literal{t.text}, nil
	case tokWord:
		switch t.text {
		case "and", "or", "not", "contains":
			return nil, p.errorf(t, "unexpected %s", t)
		}
		if _, custom := p.ops[t.text]; custom {
			return nil, p.errorf(t, "unexpected %s", t)
		}
		if v, ok := literalValue(t.text); ok {
			return literal{v}, nil
		}
		return path{t.text}, nil
	default:
		return nil, p.errorf(t, "unexpected %s", t)
	}
}
