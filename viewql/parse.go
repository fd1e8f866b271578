package viewql

import "strconv"

// The compiled form is a small serializable AST. Field order in these
// structs is what makes artifact bytes reproducible, so treat the
// msgpack tags as a wire format: append, never reorder.

type exprKind string

const (
	exprPath    exprKind = "path"
	exprStr     exprKind = "str"
	exprInt     exprKind = "int"
	exprFloat   exprKind = "float"
	exprCompare exprKind = "cmp"
)

type expr struct {
	Kind  exprKind `msgpack:"k"`
	Path  []string `msgpack:"p,omitempty"` // member path below the binding
	Str   string   `msgpack:"s,omitempty"`
	Int   int64    `msgpack:"i,omitempty"`
	Float float64  `msgpack:"f,omitempty"`
	Op    string   `msgpack:"o,omitempty"` // "==" or "!="
	Left  *expr    `msgpack:"l,omitempty"`
	Right *expr    `msgpack:"r,omitempty"`
}

type fieldDef struct {
	Name string `msgpack:"n"`
	Cast string `msgpack:"c,omitempty"` // "int", "long", "float", "double", "string" or ""
	Expr expr   `msgpack:"e"`
}

type queryDef struct {
	Binding string     `msgpack:"b"`
	Source  string     `msgpack:"src"`
	Where   *expr      `msgpack:"w,omitempty"`
	Fields  []fieldDef `msgpack:"f"`
}

var castTypes = map[string]ColumnType{
	"int":    TypeInteger,
	"long":   TypeInteger,
	"float":  TypeReal,
	"double": TypeReal,
	"string": TypeText,
}

type parser struct {
	lx  *lexer
	tok token
}

func parse(source string) (*queryDef, error) {
	p := &parser{lx: newLexer(source)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if p.tok.typ != tokEOF {
		return nil, compileErrf(p.tok.off, "unexpected %s after query", p.tok.typ)
	}
	return q, nil
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) expectKeyword(kw string) error {
	if p.tok.typ != tokIdent || p.tok.val != kw {
		return compileErrf(p.tok.off, "expected %q, got %s", kw, p.describe())
	}
	return p.advance()
}

func (p *parser) expect(tt tokenType) (token, error) {
	if p.tok.typ != tt {
		return token{}, compileErrf(p.tok.off, "expected %s, got %s", tt, p.describe())
	}
	tok := p.tok
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return tok, nil
}

func (p *parser) describe() string {
	if p.tok.typ == tokIdent || p.tok.typ == tokNumber {
		return strconv.Quote(p.tok.val)
	}
	return p.tok.typ.String()
}

// parseQuery := "from" ident "in" ident [where] select
func (p *parser) parseQuery() (*queryDef, error) {
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	binding, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	source, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}

	q := &queryDef{Binding: binding.val, Source: source.val}

	if p.tok.typ == tokIdent && p.tok.val == "where" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		w, err := p.parseCondition(q.Binding)
		if err != nil {
			return nil, err
		}
		q.Where = w
	}

	if err := p.parseSelect(q); err != nil {
		return nil, err
	}
	return q, nil
}

// parseSelect := "select" "new" "{" field ("," field)* "}"
func (p *parser) parseSelect(q *queryDef) error {
	if err := p.expectKeyword("select"); err != nil {
		return err
	}
	if err := p.expectKeyword("new"); err != nil {
		return err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for {
		name, err := p.expect(tokIdent)
		if err != nil {
			return err
		}
		if seen[name.val] {
			return compileErrf(name.off, "duplicate output field %q", name.val)
		}
		seen[name.val] = true

		if _, err := p.expect(tokAssign); err != nil {
			return err
		}

		var cast string
		if p.tok.typ == tokLParen {
			castOff := p.tok.off
			if err := p.advance(); err != nil {
				return err
			}
			castTok, err := p.expect(tokIdent)
			if err != nil {
				return err
			}
			if _, ok := castTypes[castTok.val]; !ok {
				return compileErrf(castOff, "unknown cast type %q", castTok.val)
			}
			if _, err := p.expect(tokRParen); err != nil {
				return err
			}
			cast = castTok.val
		}

		e, err := p.parsePrimary(q.Binding)
		if err != nil {
			return err
		}
		q.Fields = append(q.Fields, fieldDef{Name: name.val, Cast: cast, Expr: *e})

		if p.tok.typ == tokComma {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}

	if _, err := p.expect(tokRBrace); err != nil {
		return err
	}
	if len(q.Fields) == 0 {
		return compileErrf(p.tok.off, "projection has no output fields")
	}
	return nil
}

// parseCondition := primary (("==" | "!=") primary)?
func (p *parser) parseCondition(binding string) (*expr, error) {
	left, err := p.parsePrimary(binding)
	if err != nil {
		return nil, err
	}
	if p.tok.typ != tokEq && p.tok.typ != tokNeq {
		return left, nil
	}
	op := p.tok.val
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parsePrimary(binding)
	if err != nil {
		return nil, err
	}
	return &expr{Kind: exprCompare, Op: op, Left: left, Right: right}, nil
}

// parsePrimary := memberPath | string | number
func (p *parser) parsePrimary(binding string) (*expr, error) {
	switch p.tok.typ {
	case tokString:
		e := &expr{Kind: exprStr, Str: p.tok.val}
		return e, p.advance()
	case tokNumber:
		val := p.tok.val
		off := p.tok.off
		if err := p.advance(); err != nil {
			return nil, err
		}
		if f, err := strconv.ParseInt(val, 10, 64); err == nil {
			return &expr{Kind: exprInt, Int: f}, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, compileErrf(off, "bad number literal %q", val)
		}
		return &expr{Kind: exprFloat, Float: f}, nil
	case tokIdent:
		return p.parsePath(binding)
	default:
		return nil, compileErrf(p.tok.off, "expected expression, got %s", p.describe())
	}
}

// parsePath := binding ("." ident)+
func (p *parser) parsePath(binding string) (*expr, error) {
	root, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if root.val != binding {
		return nil, compileErrf(root.off, "unknown name %q (the range variable is %q)", root.val, binding)
	}
	var path []string
	for p.tok.typ == tokDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		seg, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		path = append(path, seg.val)
	}
	if len(path) == 0 {
		return nil, compileErrf(root.off, "expected a member access on %q", binding)
	}
	return &expr{Kind: exprPath, Path: path}, nil
}
