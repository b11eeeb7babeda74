package dynamotest

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// tokenizer

type token struct {
	kind string // ident, op, eof
	text string
}

func tokenize(s string) ([]token, error) {
	var out []token
	i := 0
	for i < len(s) {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '#' || c == ':' || c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c):
			j := i + 1
			for j < len(s) {
				r := rune(s[j])
				if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
					j++
					continue
				}
				break
			}
			out = append(out, token{kind: "ident", text: s[i:j]})
			i = j
		case strings.HasPrefix(s[i:], "<>") || strings.HasPrefix(s[i:], "<=") || strings.HasPrefix(s[i:], ">="):
			out = append(out, token{kind: "op", text: s[i : i+2]})
			i += 2
		case strings.ContainsRune("()=<>,.+-[]", c):
			out = append(out, token{kind: "op", text: string(c)})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q in %q", c, s)
		}
	}
	return append(out, token{kind: "eof"}), nil
}

type parser struct {
	toks   []token
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue
}

func newParser(expr string, names map[string]string, values map[string]types.AttributeValue) (*parser, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, names: names, values: values}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != "eof" {
		p.pos++
	}
	return t
}

func (p *parser) isKeyword(kw string) bool {
	t := p.peek()
	return t.kind == "ident" && strings.EqualFold(t.text, kw)
}

func (p *parser) expect(text string) error {
	t := p.next()
	if t.text != text {
		return fmt.Errorf("expected %q, got %q", text, t.text)
	}
	return nil
}

// operands

type path []string

type operand interface {
	eval(item map[string]types.AttributeValue) (types.AttributeValue, bool, error)
}

func (pt path) eval(item map[string]types.AttributeValue) (types.AttributeValue, bool, error) {
	av, ok := getPath(item, pt)
	return av, ok, nil
}

type literal struct{ av types.AttributeValue }

func (l literal) eval(map[string]types.AttributeValue) (types.AttributeValue, bool, error) {
	return l.av, true, nil
}

type ifNotExists struct {
	p   path
	def operand
}

func (f ifNotExists) eval(item map[string]types.AttributeValue) (types.AttributeValue, bool, error) {
	if av, ok := getPath(item, f.p); ok {
		return av, true, nil
	}
	return f.def.eval(item)
}

type listAppend struct{ a, b operand }

func (f listAppend) eval(item map[string]types.AttributeValue) (types.AttributeValue, bool, error) {
	a, okA, err := f.a.eval(item)
	if err != nil {
		return nil, false, err
	}
	b, okB, err := f.b.eval(item)
	if err != nil {
		return nil, false, err
	}
	la, isA := a.(*types.AttributeValueMemberL)
	lb, isB := b.(*types.AttributeValueMemberL)
	if !okA || !okB || !isA || !isB {
		return nil, false, fmt.Errorf("list_append requires two lists")
	}
	out := make([]types.AttributeValue, 0, len(la.Value)+len(lb.Value))
	out = append(out, la.Value...)
	out = append(out, lb.Value...)
	return &types.AttributeValueMemberL{Value: out}, true, nil
}

type arith struct {
	op   string
	a, b operand
}

func (f arith) eval(item map[string]types.AttributeValue) (types.AttributeValue, bool, error) {
	a, okA, err := f.a.eval(item)
	if err != nil {
		return nil, false, err
	}
	b, okB, err := f.b.eval(item)
	if err != nil {
		return nil, false, err
	}
	if !okA || !okB {
		return nil, false, fmt.Errorf("arithmetic on missing attribute")
	}
	da, err := toNumber(a)
	if err != nil {
		return nil, false, err
	}
	db, err := toNumber(b)
	if err != nil {
		return nil, false, err
	}
	if f.op == "+" {
		return numberAV(da.Add(db)), true, nil
	}
	return numberAV(da.Sub(db)), true, nil
}

func (p *parser) parsePath() (path, error) {
	t := p.next()
	if t.kind != "ident" || strings.HasPrefix(t.text, ":") {
		return nil, fmt.Errorf("expected attribute path, got %q", t.text)
	}
	var out path
	out = append(out, p.resolveName(t.text))
	for p.peek().text == "." {
		p.next()
		n := p.next()
		if n.kind != "ident" {
			return nil, fmt.Errorf("bad path segment %q", n.text)
		}
		out = append(out, p.resolveName(n.text))
	}
	return out, nil
}

func (p *parser) resolveName(s string) string {
	if strings.HasPrefix(s, "#") {
		if v, ok := p.names[s]; ok {
			return v
		}
	}
	return s
}

func (p *parser) parseOperand() (operand, error) {
	t := p.peek()
	if t.kind != "ident" {
		return nil, fmt.Errorf("expected operand, got %q", t.text)
	}
	if strings.HasPrefix(t.text, ":") {
		p.next()
		av, ok := p.values[t.text]
		if !ok {
			return nil, fmt.Errorf("missing expression value %s", t.text)
		}
		return literal{av: av}, nil
	}
	switch strings.ToLower(t.text) {
	case "if_not_exists":
		p.next()
		if err := p.expect("("); err != nil {
			return nil, err
		}
		pt, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		def, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return ifNotExists{p: pt, def: def}, p.expect(")")
	case "list_append":
		p.next()
		if err := p.expect("("); err != nil {
			return nil, err
		}
		a, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		b, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return listAppend{a: a, b: b}, p.expect(")")
	}
	return p.parsePath()
}

func (p *parser) parseValue() (operand, error) {
	a, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if op := p.peek().text; op == "+" || op == "-" {
		p.next()
		b, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return arith{op: op, a: a, b: b}, nil
	}
	return a, nil
}

// conditions

type condFunc func(item map[string]types.AttributeValue) (bool, error)

func compileCondition(expr string, names map[string]string, values map[string]types.AttributeValue) (condFunc, error) {
	p, err := newParser(expr, names, values)
	if err != nil {
		return nil, err
	}
	c, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != "eof" {
		return nil, fmt.Errorf("trailing tokens in %q", expr)
	}
	return c, nil
}

func (p *parser) parseOr() (condFunc, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(item map[string]types.AttributeValue) (bool, error) {
			ok, err := l(item)
			if err != nil || ok {
				return ok, err
			}
			return right(item)
		}
	}
	return left, nil
}

func (p *parser) parseAnd() (condFunc, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(item map[string]types.AttributeValue) (bool, error) {
			ok, err := l(item)
			if err != nil || !ok {
				return false, err
			}
			return right(item)
		}
	}
	return left, nil
}

func (p *parser) parseNot() (condFunc, error) {
	if p.isKeyword("NOT") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return func(item map[string]types.AttributeValue) (bool, error) {
			ok, err := inner(item)
			return !ok, err
		}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (condFunc, error) {
	if p.peek().text == "(" {
		p.next()
		c, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		return c, p.expect(")")
	}

	switch strings.ToLower(p.peek().text) {
	case "attribute_exists", "attribute_not_exists":
		fn := strings.ToLower(p.next().text)
		if err := p.expect("("); err != nil {
			return nil, err
		}
		pt, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		want := fn == "attribute_exists"
		return func(item map[string]types.AttributeValue) (bool, error) {
			_, ok := getPath(item, pt)
			return ok == want, nil
		}, nil
	case "contains", "begins_with":
		fn := strings.ToLower(p.next().text)
		if err := p.expect("("); err != nil {
			return nil, err
		}
		pt, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		arg, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return func(item map[string]types.AttributeValue) (bool, error) {
			av, ok := getPath(item, pt)
			if !ok {
				return false, nil
			}
			v, _, err := arg.eval(item)
			if err != nil {
				return false, err
			}
			if fn == "begins_with" {
				return beginsWith(av, v), nil
			}
			return contains(av, v), nil
		}, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.isKeyword("BETWEEN") {
		p.next()
		lo, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if !p.isKeyword("AND") {
			return nil, fmt.Errorf("BETWEEN without AND")
		}
		p.next()
		hi, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return func(item map[string]types.AttributeValue) (bool, error) {
			v, ok, _ := left.eval(item)
			if !ok {
				return false, nil
			}
			l, _, _ := lo.eval(item)
			h, _, _ := hi.eval(item)
			c1, ok1 := compare(v, l)
			c2, ok2 := compare(v, h)
			return ok1 && ok2 && c1 >= 0 && c2 <= 0, nil
		}, nil
	}

	if p.isKeyword("IN") {
		p.next()
		if err := p.expect("("); err != nil {
			return nil, err
		}
		var opts []operand
		for {
			o, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			opts = append(opts, o)
			if p.peek().text == "," {
				p.next()
				continue
			}
			break
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return func(item map[string]types.AttributeValue) (bool, error) {
			v, ok, _ := left.eval(item)
			if !ok {
				return false, nil
			}
			for _, o := range opts {
				ov, _, _ := o.eval(item)
				if c, ok := compare(v, ov); ok && c == 0 {
					return true, nil
				}
			}
			return false, nil
		}, nil
	}

	op := p.next()
	if op.kind != "op" {
		return nil, fmt.Errorf("expected comparator, got %q", op.text)
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return func(item map[string]types.AttributeValue) (bool, error) {
		a, okA, _ := left.eval(item)
		b, okB, _ := right.eval(item)
		if !okA || !okB {
			return op.text == "<>" && okA != okB, nil
		}
		c, ok := compare(a, b)
		if !ok {
			return op.text == "<>", nil
		}
		switch op.text {
		case "=":
			return c == 0, nil
		case "<>":
			return c != 0, nil
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		case ">=":
			return c >= 0, nil
		}
		return false, fmt.Errorf("unknown comparator %q", op.text)
	}, nil
}

// updates

type updateAction func(item map[string]types.AttributeValue) error

func compileUpdate(expr string, names map[string]string, values map[string]types.AttributeValue) ([]updateAction, error) {
	p, err := newParser(expr, names, values)
	if err != nil {
		return nil, err
	}
	var actions []updateAction
	for p.peek().kind != "eof" {
		clause := strings.ToUpper(p.next().text)
		for {
			pt, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			switch clause {
			case "SET":
				if err := p.expect("="); err != nil {
					return nil, err
				}
				v, err := p.parseValue()
				if err != nil {
					return nil, err
				}
				actions = append(actions, func(item map[string]types.AttributeValue) error {
					av, ok, err := v.eval(item)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("SET %v from missing attribute", pt)
					}
					return setPath(item, pt, av)
				})
			case "REMOVE":
				actions = append(actions, func(item map[string]types.AttributeValue) error {
					removePath(item, pt)
					return nil
				})
			case "ADD", "DELETE":
				v, err := p.parseOperand()
				if err != nil {
					return nil, err
				}
				del := clause == "DELETE"
				actions = append(actions, func(item map[string]types.AttributeValue) error {
					av, _, err := v.eval(item)
					if err != nil {
						return err
					}
					cur, exists := getPath(item, pt)
					res, err := addOrDelete(cur, exists, av, del)
					if err != nil {
						return err
					}
					if res == nil {
						removePath(item, pt)
						return nil
					}
					return setPath(item, pt, res)
				})
			default:
				return nil, fmt.Errorf("unknown update clause %q", clause)
			}
			if p.peek().text == "," {
				p.next()
				continue
			}
			break
		}
	}
	return actions, nil
}

func addOrDelete(cur types.AttributeValue, exists bool, v types.AttributeValue, del bool) (types.AttributeValue, error) {
	switch val := v.(type) {
	case *types.AttributeValueMemberN:
		if del {
			return nil, fmt.Errorf("DELETE on number")
		}
		n, _ := decimal.NewFromString(val.Value)
		if exists {
			c, err := toNumber(cur)
			if err != nil {
				return nil, err
			}
			n = n.Add(c)
		}
		return numberAV(n), nil
	case *types.AttributeValueMemberSS:
		set := map[string]bool{}
		var order []string
		if exists {
			cs, ok := cur.(*types.AttributeValueMemberSS)
			if !ok {
				return nil, fmt.Errorf("set operation on non-set")
			}
			for _, s := range cs.Value {
				set[s] = true
				order = append(order, s)
			}
		}
		for _, s := range val.Value {
			if del {
				delete(set, s)
			} else if !set[s] {
				set[s] = true
				order = append(order, s)
			}
		}
		var out []string
		for _, s := range order {
			if set[s] {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return &types.AttributeValueMemberSS{Value: out}, nil
	}
	return nil, fmt.Errorf("ADD/DELETE supports numbers and string sets only")
}

// value helpers

func getPath(item map[string]types.AttributeValue, pt path) (types.AttributeValue, bool) {
	var cur types.AttributeValue = &types.AttributeValueMemberM{Value: item}
	for _, seg := range pt {
		m, ok := cur.(*types.AttributeValueMemberM)
		if !ok {
			return nil, false
		}
		next, ok := m.Value[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func setPath(item map[string]types.AttributeValue, pt path, av types.AttributeValue) error {
	m := item
	for _, seg := range pt[:len(pt)-1] {
		child, ok := m[seg].(*types.AttributeValueMemberM)
		if !ok {
			return fmt.Errorf("document path %v does not exist", pt)
		}
		m = child.Value
	}
	m[pt[len(pt)-1]] = av
	return nil
}

func removePath(item map[string]types.AttributeValue, pt path) {
	m := item
	for _, seg := range pt[:len(pt)-1] {
		child, ok := m[seg].(*types.AttributeValueMemberM)
		if !ok {
			return
		}
		m = child.Value
	}
	delete(m, pt[len(pt)-1])
}

func toNumber(av types.AttributeValue) (decimal.Decimal, error) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return decimal.Zero, fmt.Errorf("not a number: %T", av)
	}
	return decimal.NewFromString(n.Value)
}

func numberAV(d decimal.Decimal) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: d.String()}
}

func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		da, err1 := decimal.NewFromString(av.Value)
		db, err2 := decimal.NewFromString(bv.Value)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return da.Cmp(db), true
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, false
		}
		if av.Value == bv.Value {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}

func contains(av, v types.AttributeValue) bool {
	switch a := av.(type) {
	case *types.AttributeValueMemberS:
		s, ok := v.(*types.AttributeValueMemberS)
		return ok && strings.Contains(a.Value, s.Value)
	case *types.AttributeValueMemberSS:
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		for _, x := range a.Value {
			if x == s.Value {
				return true
			}
		}
	case *types.AttributeValueMemberL:
		for _, x := range a.Value {
			if c, ok := compare(x, v); ok && c == 0 {
				return true
			}
		}
	}
	return false
}

func beginsWith(av, v types.AttributeValue) bool {
	a, ok1 := av.(*types.AttributeValueMemberS)
	s, ok2 := v.(*types.AttributeValueMemberS)
	return ok1 && ok2 && strings.HasPrefix(a.Value, s.Value)
}
