package parse

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/vusec/canonptrs-prelim/compiler/ir"
	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

type (
	state struct {
		b []byte
		m *ir.Module

		refs map[*ir.Func]*ir.FuncRef

		// per function
		f       *ir.Func
		blk     *ir.Block
		vals    map[string]ir.Value
		blocks  map[string]*ir.Block
		defined map[string]bool
		phis    []phiFix
	}

	// phiFix records the source positions of one phi's incoming
	// operands. They may refer to values defined further down, so
	// they are resolved once the whole body is parsed.
	phiFix struct {
		phi  *ir.Instr
		vals []int // operand source positions
		blks []string
		pos  int
	}
)

// Module parses the textual IR form produced by format.
func Module(ctx context.Context, name string, text []byte) (_ *ir.Module, err error) {
	tr := tlog.SpanFromContext(ctx)

	s := &state{
		b:    text,
		m:    &ir.Module{Name: name},
		refs: map[*ir.Func]*ir.FuncRef{},
	}

	i := 0

	for {
		i = s.skipNL(i)
		if i == len(s.b) {
			break
		}

		w, e := s.ident(i)
		if w == "" {
			return nil, errors.New("at pos %d: expected global, decl or func", i)
		}

		switch w {
		case "global":
			e, err = s.global(ctx, e)
		case "decl":
			e, err = s.funcDecl(ctx, e)
		case "func":
			e, err = s.funcDef(ctx, e)
		default:
			err = errors.New("unexpected ident: %v", w)
		}

		if err != nil {
			return nil, errors.Wrap(err, "at pos %d", i)
		}

		i = e
	}

	tr.V("parse").Printw("parsed module", "name", name, "funcs", len(s.m.Funcs), "globals", len(s.m.Globals))

	return s.m, nil
}

func (s *state) global(ctx context.Context, i int) (_ int, err error) {
	i = s.skip(i)

	if i == len(s.b) || s.b[i] != '@' {
		return i, errors.New("expected global name")
	}

	name, i := s.ident(i + 1)
	if name == "" {
		return i, errors.New("expected global name")
	}

	typ, i, err := s.typ(i)
	if err != nil {
		return i, errors.Wrap(err, "global type")
	}

	if s.m.Global(name) != nil {
		return i, errors.New("global redefined: @%v", name)
	}

	s.m.Globals = append(s.m.Globals, ir.NewGlobal(name, typ))

	return i, nil
}

func (s *state) funcDecl(ctx context.Context, i int) (_ int, err error) {
	i = s.skip(i)

	w, i := s.ident(i)
	if w != "func" {
		return i, errors.New("expected func after decl")
	}

	f, i, err := s.funcHeader(ctx, i, false)
	if err != nil {
		return i, err
	}

	s.m.Funcs = append(s.m.Funcs, f)

	return i, nil
}

func (s *state) funcDef(ctx context.Context, i int) (_ int, err error) {
	f, i, err := s.funcHeader(ctx, i, true)
	if err != nil {
		return i, err
	}

	s.m.Funcs = append(s.m.Funcs, f)

	i = s.skip(i)

	if i == len(s.b) || s.b[i] != '{' {
		return i, errors.New("expected function body")
	}

	i, err = s.funcBody(ctx, i+1)
	if err != nil {
		return i, errors.Wrap(err, "func %v", f.Name)
	}

	return i, nil
}

func (s *state) funcHeader(ctx context.Context, i int, named bool) (f *ir.Func, _ int, err error) {
	i = s.skip(i)

	if i == len(s.b) || s.b[i] != '@' {
		return nil, i, errors.New("expected func name")
	}

	name, i := s.ident(i + 1)
	if name == "" {
		return nil, i, errors.New("expected func name")
	}

	if s.m.Func(name) != nil {
		return nil, i, errors.New("func redefined: @%v", name)
	}

	f = &ir.Func{Name: name}

	i = s.skip(i)

	if i == len(s.b) || s.b[i] != '(' {
		return nil, i, errors.New("expected params")
	}

	i++

	for first := true; ; first = false {
		i = s.skip(i)

		if i < len(s.b) && s.b[i] == ')' {
			i++
			break
		}

		if !first {
			if i == len(s.b) || s.b[i] != ',' {
				return nil, i, errors.New("expected , or ) in params")
			}

			i = s.skip(i + 1)
		}

		var typ tp.Type

		typ, i, err = s.typ(i)
		if err != nil {
			return nil, i, errors.Wrap(err, "param type")
		}

		pname := ""

		if named {
			i = s.skip(i)

			if i == len(s.b) || s.b[i] != '%' {
				return nil, i, errors.New("expected param name")
			}

			pname, i = s.ident(i + 1)
			if pname == "" {
				return nil, i, errors.New("expected param name")
			}
		}

		f.AddParam(pname, typ)
	}

	// optional result type, linkage, attrs
	for {
		i = s.skip(i)

		if i == len(s.b) {
			break
		}

		// a brace here is the body, not a struct result type
		if f.Out == nil && s.b[i] != '{' && s.looksLikeType(i) {
			f.Out, i, err = s.typ(i)
			if err != nil {
				return nil, i, errors.Wrap(err, "result type")
			}

			continue
		}

		if s.b[i] == '#' {
			var w string

			w, i = s.ident(i + 1)

			switch w {
			case "canonptr":
				f.Attrs |= ir.AttrCanonPtr
			case "nosanitize":
				f.Attrs |= ir.AttrNoSanitize
			default:
				return nil, i, errors.New("unknown attribute: #%v", w)
			}

			continue
		}

		if w, e := s.ident(i); w != "" {
			switch w {
			case "external":
				f.Linkage = ir.External
			case "internal":
				f.Linkage = ir.Internal
			case "available_externally":
				f.Linkage = ir.AvailableExternally
			default:
				return nil, i, errors.New("unknown linkage: %v", w)
			}

			i = e

			continue
		}

		break
	}

	return f, i, nil
}

func (s *state) funcBody(ctx context.Context, i int) (_ int, err error) {
	s.f = s.m.Funcs[len(s.m.Funcs)-1]
	s.blk = nil
	s.vals = map[string]ir.Value{}
	s.blocks = map[string]*ir.Block{}
	s.defined = map[string]bool{}
	s.phis = nil

	for _, p := range s.f.In {
		s.vals[p.Name()] = p
	}

	for {
		i = s.skipNL(i)

		if i == len(s.b) {
			return i, errors.New("unterminated function body")
		}

		if s.b[i] == '}' {
			i++
			break
		}

		st := i

		i, err = s.line(ctx, i)
		if err != nil {
			return i, errors.Wrap(err, "at pos %d", st)
		}
	}

	for name := range s.blocks {
		if !s.defined[name] {
			return i, errors.New("undefined label: %v", name)
		}
	}

	err = s.fixPhis()
	if err != nil {
		return i, err
	}

	return i, nil
}

func (s *state) line(ctx context.Context, i int) (_ int, err error) {
	// label?
	if w, e := s.ident(i); w != "" {
		if e < len(s.b) && s.b[e] == ':' {
			if s.defined[w] {
				return e, errors.New("label redefined: %v", w)
			}

			b := s.getBlock(w)
			s.f.AttachBlock(b)
			s.defined[w] = true
			s.blk = b

			return e + 1, nil
		}
	}

	if s.blk == nil {
		return i, errors.New("instruction before the first label")
	}

	return s.instr(ctx, i)
}

func (s *state) getBlock(name string) *ir.Block {
	b, ok := s.blocks[name]
	if !ok {
		b = s.f.NewBlockDetached(name)
		s.blocks[name] = b
	}

	return b
}

func (s *state) fixPhis() error {
	for _, fix := range s.phis {
		for j, at := range fix.vals {
			v, _, err := s.operand(at)
			if err != nil {
				return errors.Wrap(err, "at pos %d: phi %v", at, fix.phi)
			}

			fix.phi.AddArg(v)

			b, ok := s.blocks[fix.blks[j]]
			if !ok || !s.defined[fix.blks[j]] {
				return errors.New("at pos %d: phi %v: undefined label: %v", fix.pos, fix.phi, fix.blks[j])
			}

			fix.phi.Incoming = append(fix.phi.Incoming, b)
		}
	}

	return nil
}

func (s *state) namedValue(n string) (ir.Value, error) {
	if n == "" {
		return nil, errors.New("empty value name")
	}

	if n[0] == '@' {
		return s.globalValue(n[1:])
	}

	v, ok := s.vals[n]
	if !ok {
		return nil, errors.New("unknown value: %%%v", n)
	}

	return v, nil
}

func (s *state) globalValue(n string) (ir.Value, error) {
	if g := s.m.Global(n); g != nil {
		return g, nil
	}

	if f := s.m.Func(n); f != nil {
		r, ok := s.refs[f]
		if !ok {
			r = &ir.FuncRef{F: f}
			s.refs[f] = r
		}

		return r, nil
	}

	return nil, errors.New("unknown global: @%v", n)
}
