package viewql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Program is an executable view transform together with its output
// schema and the serialized artifact it can be reloaded from. Programs
// are immutable and safe for concurrent use; callers holding the same
// underlying instance compare equal as pointers.
type Program struct {
	def      queryDef
	cols     []Column
	artifact []byte
}

// Compile parses source and returns the executable transform plus the
// derived schema. Compiling identical source twice yields identical
// artifact bytes and identical schemas.
func Compile(source string) (*Program, error) {
	def, err := parse(source)
	if err != nil {
		return nil, err
	}
	artifact, err := msgpack.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("serializing compiled view: %w", err)
	}
	return &Program{
		def:      *def,
		cols:     deriveSchema(def),
		artifact: artifact,
	}, nil
}

// Load reconstructs a Program from a compiled artifact produced by
// Compile, without reparsing source text.
func Load(artifact []byte) (*Program, error) {
	var def queryDef
	if err := msgpack.Unmarshal(artifact, &def); err != nil {
		return nil, fmt.Errorf("loading compiled view: %w", err)
	}
	return &Program{
		def:      def,
		cols:     deriveSchema(&def),
		artifact: append([]byte(nil), artifact...),
	}, nil
}

func deriveSchema(def *queryDef) []Column {
	cols := make([]Column, len(def.Fields))
	for i, f := range def.Fields {
		typ := TypeText
		if f.Cast != "" {
			typ = castTypes[f.Cast]
		}
		cols[i] = Column{Name: f.Name, Type: typ}
	}
	return cols
}

// Schema returns the output columns in declaration order.
func (p *Program) Schema() []Column {
	return append([]Column(nil), p.cols...)
}

// Artifact returns the reproducible serialization of the compiled form.
func (p *Program) Artifact() []byte {
	return append([]byte(nil), p.artifact...)
}

// Apply projects one document into zero or more records. A document
// rejected by the where clause yields no records; otherwise the result
// is one record with column values in schema order.
func (p *Program) Apply(doc map[string]any) []Record {
	if p.def.Where != nil && !truthy(evalExpr(p.def.Where, doc)) {
		return nil
	}
	rec := make(Record, len(p.def.Fields))
	for i, f := range p.def.Fields {
		rec[i] = castValue(f.Cast, evalExpr(&f.Expr, doc))
	}
	return []Record{rec}
}

func evalExpr(e *expr, doc map[string]any) any {
	switch e.Kind {
	case exprStr:
		return e.Str
	case exprInt:
		return e.Int
	case exprFloat:
		return e.Float
	case exprPath:
		return lookupPath(doc, e.Path)
	case exprCompare:
		l := evalExpr(e.Left, doc)
		r := evalExpr(e.Right, doc)
		eq := looseEqual(l, r)
		if e.Op == "!=" {
			return !eq
		}
		return eq
	default:
		panic(fmt.Errorf("corrupt view program: expression kind %q", e.Kind))
	}
}

func lookupPath(doc map[string]any, path []string) any {
	var cur any = doc
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// looseEqual compares scalars the way a dynamic document language
// would: numbers compare by value regardless of width, everything else
// by string form.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return stringify(a) == stringify(b)
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	default:
		f, ok := toFloat(v)
		if ok {
			return f != 0
		}
		return true
	}
}

func castValue(cast string, v any) any {
	switch cast {
	case "":
		if v == nil {
			return nil
		}
		return stringify(v)
	case "int", "long":
		return toInt64(v)
	case "float", "double":
		f, _ := toFloat(v)
		return f
	case "string":
		if v == nil {
			return nil
		}
		return stringify(v)
	default:
		panic(fmt.Errorf("corrupt view program: cast %q", cast))
	}
}

func toInt64(v any) int64 {
	switch v := v.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
