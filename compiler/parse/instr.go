package parse

import (
	"context"

	"tlog.app/go/errors"

	"github.com/vusec/canonptrs-prelim/compiler/ir"
	"github.com/vusec/canonptrs-prelim/compiler/tp"
)

var binOps = map[string]ir.Op{
	"add":  ir.Add,
	"sub":  ir.Sub,
	"mul":  ir.Mul,
	"and":  ir.And,
	"shl":  ir.Shl,
	"lshr": ir.LShr,
}

func (s *state) instr(ctx context.Context, i int) (_ int, err error) {
	name := ""

	i = s.skip(i)

	if i < len(s.b) && s.b[i] == '%' {
		name, i = s.valueName(i + 1)
		if name == "" {
			return i, errors.New("expected result name")
		}

		i, err = s.expect(i, '=')
		if err != nil {
			return i, err
		}
	}

	op, i := s.ident(i)
	if op == "" {
		return i, errors.New("expected instruction")
	}

	var x *ir.Instr

	if bop, ok := binOps[op]; ok {
		x, i, err = s.binop(bop, name, i)
	} else {
		switch op {
		case "neg", "sext", "ptrtoint", "load":
			x, i, err = s.unop(op, name, i)
		case "store":
			x, i, err = s.store(i)
		case "addr":
			x, i, err = s.addr(name, i)
		case "inttoptr":
			x, i, err = s.intToPtr(name, i)
		case "phi":
			x, i, err = s.phi(name, i)
		case "call", "invoke":
			x, i, err = s.call(op, name, i)
		case "br":
			x, i, err = s.br(i)
		case "ret":
			x, i, err = s.ret(i)
		default:
			return i, errors.New("unknown instruction: %v", op)
		}
	}

	if err != nil {
		return i, errors.Wrap(err, "%v", op)
	}

	if name != "" {
		if x.Type() == nil {
			return i, errors.New("%v produces no result to name", op)
		}

		if _, ok := s.vals[name]; ok {
			return i, errors.New("value redefined: %%%v", name)
		}

		s.vals[name] = x
	}

	s.blk.Append(x)

	return s.eol(i)
}

// eol requires nothing but whitespace up to the end of the line.
func (s *state) eol(i int) (int, error) {
	i = s.skip(i)

	if i < len(s.b) && s.b[i] != '\n' && s.b[i] != '}' {
		return i, errors.New("trailing input")
	}

	return i, nil
}

func (s *state) operand(i int) (_ ir.Value, _ int, err error) {
	i = s.skip(i)

	if i == len(s.b) {
		return nil, i, errors.New("expected operand")
	}

	switch {
	case s.b[i] == '%':
		name, e := s.valueName(i + 1)

		v, err := s.namedValue(name)
		if err != nil {
			return nil, i, err
		}

		return v, e, nil
	case s.b[i] == '@':
		name, e := s.valueName(i + 1)

		v, err := s.globalValue(name)
		if err != nil {
			return nil, i, err
		}

		return v, e, nil
	case s.looksLikeType(i):
		t, e, err := s.typ(i)
		if err != nil {
			return nil, e, err
		}

		it, ok := t.(tp.Int)
		if !ok {
			return nil, e, errors.New("constants are integers, got %v", t)
		}

		v, e, err := s.number(e)
		if err != nil {
			return nil, e, err
		}

		return &ir.Const{Typ: it, Val: v}, e, nil
	default:
		return nil, i, errors.New("expected operand")
	}
}

func (s *state) binop(op ir.Op, name string, i int) (_ *ir.Instr, _ int, err error) {
	a, i, err := s.operand(i)
	if err != nil {
		return nil, i, err
	}

	i, err = s.expect(i, ',')
	if err != nil {
		return nil, i, err
	}

	b, i, err := s.operand(i)
	if err != nil {
		return nil, i, err
	}

	return s.f.NewInstr(op, name, a.Type(), a, b), i, nil
}

func (s *state) unop(op string, name string, i int) (_ *ir.Instr, _ int, err error) {
	a, i, err := s.operand(i)
	if err != nil {
		return nil, i, err
	}

	switch op {
	case "neg":
		return s.f.NewInstr(ir.Neg, name, a.Type(), a), i, nil
	case "sext":
		return s.f.NewInstr(ir.SExt, name, tp.I64, a), i, nil
	case "ptrtoint":
		return s.f.NewInstr(ir.PtrToInt, name, tp.I64, a), i, nil
	case "load":
		pt, ok := a.Type().(tp.Ptr)
		if !ok {
			return nil, i, errors.New("load needs a pointer, got %v", a.Type())
		}

		return s.f.NewInstr(ir.Load, name, pt.X, a), i, nil
	default:
		panic(op)
	}
}

func (s *state) store(i int) (_ *ir.Instr, _ int, err error) {
	v, i, err := s.operand(i)
	if err != nil {
		return nil, i, err
	}

	i, err = s.expect(i, ',')
	if err != nil {
		return nil, i, err
	}

	p, i, err := s.operand(i)
	if err != nil {
		return nil, i, err
	}

	return s.f.NewInstr(ir.Store, "", nil, v, p), i, nil
}

func (s *state) addr(name string, i int) (_ *ir.Instr, _ int, err error) {
	elem, i, err := s.typ(i)
	if err != nil {
		return nil, i, errors.Wrap(err, "element type")
	}

	i, err = s.expect(i, ',')
	if err != nil {
		return nil, i, err
	}

	base, i, err := s.operand(i)
	if err != nil {
		return nil, i, errors.Wrap(err, "base")
	}

	args := []ir.Value{base}

	for {
		e := s.skip(i)

		if e == len(s.b) || s.b[e] != ',' {
			break
		}

		var idx ir.Value

		idx, i, err = s.operand(e + 1)
		if err != nil {
			return nil, i, errors.Wrap(err, "index")
		}

		args = append(args, idx)
	}

	typ, err := ir.AddrType(elem, base, args[1:])
	if err != nil {
		return nil, i, err
	}

	x := s.f.NewInstr(ir.Addr, name, typ, args...)
	x.Elem = elem

	return x, i, nil
}

func (s *state) intToPtr(name string, i int) (_ *ir.Instr, _ int, err error) {
	a, i, err := s.operand(i)
	if err != nil {
		return nil, i, err
	}

	w, i := s.ident(i)
	if w != "to" {
		return nil, i, errors.New("expected to")
	}

	t, i, err := s.typ(i)
	if err != nil {
		return nil, i, err
	}

	return s.f.NewInstr(ir.IntToPtr, name, t, a), i, nil
}

func (s *state) phi(name string, i int) (_ *ir.Instr, _ int, err error) {
	typ, i, err := s.typ(i)
	if err != nil {
		return nil, i, err
	}

	x := s.f.NewInstr(ir.Phi, name, typ)
	fix := phiFix{phi: x, pos: i}

	for first := true; ; first = false {
		e := s.skip(i)

		if !first {
			if e == len(s.b) || s.b[e] != ',' {
				break
			}

			e = s.skip(e + 1)
		}

		if e == len(s.b) || s.b[e] != '[' {
			if first {
				return nil, e, errors.New("expected incoming list")
			}

			break
		}

		// args may be defined below; remember the position and
		// resolve after the whole body is parsed.
		e = s.skip(e + 1)
		fix.vals = append(fix.vals, e)

		for e < len(s.b) && s.b[e] != ',' && s.b[e] != '\n' {
			e++
		}

		e, err = s.expect(e, ',')
		if err != nil {
			return nil, e, err
		}

		lab, e := s.ident(e)
		if lab == "" {
			return nil, e, errors.New("expected incoming label")
		}

		fix.blks = append(fix.blks, lab)

		e, err = s.expect(e, ']')
		if err != nil {
			return nil, e, err
		}

		i = e
	}

	s.phis = append(s.phis, fix)

	return x, i, nil
}

func (s *state) call(op string, name string, i int) (_ *ir.Instr, _ int, err error) {
	callee, i, err := s.operand(i)
	if err != nil {
		return nil, i, errors.Wrap(err, "callee")
	}

	var sig tp.Func

	if pt, ok := callee.Type().(tp.Ptr); ok {
		if ft, ok := pt.X.(tp.Func); ok {
			sig = ft
		} else {
			return nil, i, errors.New("callee is %v, not a function", callee.Type())
		}
	} else {
		return nil, i, errors.New("callee is %v, not a function", callee.Type())
	}

	i, err = s.expect(i, '(')
	if err != nil {
		return nil, i, err
	}

	args := []ir.Value{callee}

	for first := true; ; first = false {
		i = s.skip(i)

		if i < len(s.b) && s.b[i] == ')' {
			i++
			break
		}

		if !first {
			i, err = s.expect(i, ',')
			if err != nil {
				return nil, i, err
			}
		}

		var a ir.Value

		a, i, err = s.operand(i)
		if err != nil {
			return nil, i, err
		}

		args = append(args, a)
	}

	var out tp.Type

	if len(sig.Out) != 0 {
		out = sig.Out[0]
	}

	if op == "call" {
		return s.f.NewInstr(ir.Call, name, out, args...), i, nil
	}

	x := s.f.NewInstr(ir.Invoke, name, out, args...)

	w, i := s.ident(i)
	if w != "to" {
		return nil, i, errors.New("expected to")
	}

	lab, i := s.ident(i)
	if lab == "" {
		return nil, i, errors.New("expected normal destination")
	}

	x.To = s.getBlock(lab)

	w, i = s.ident(i)
	if w != "unwind" {
		return nil, i, errors.New("expected unwind")
	}

	lab, i = s.ident(i)
	if lab == "" {
		return nil, i, errors.New("expected unwind destination")
	}

	x.Alt = s.getBlock(lab)

	return x, i, nil
}

func (s *state) br(i int) (_ *ir.Instr, _ int, err error) {
	i = s.skip(i)

	if i < len(s.b) && s.b[i] == '%' {
		cond, i, err := s.operand(i)
		if err != nil {
			return nil, i, err
		}

		i, err = s.expect(i, ',')
		if err != nil {
			return nil, i, err
		}

		then, i := s.ident(i)
		if then == "" {
			return nil, i, errors.New("expected label")
		}

		i, err = s.expect(i, ',')
		if err != nil {
			return nil, i, err
		}

		alt, i := s.ident(i)
		if alt == "" {
			return nil, i, errors.New("expected label")
		}

		x := s.f.NewInstr(ir.CondBr, "", nil, cond)
		x.To = s.getBlock(then)
		x.Alt = s.getBlock(alt)

		return x, i, nil
	}

	lab, i := s.ident(i)
	if lab == "" {
		return nil, i, errors.New("expected label")
	}

	x := s.f.NewInstr(ir.Br, "", nil)
	x.To = s.getBlock(lab)

	return x, i, nil
}

func (s *state) ret(i int) (_ *ir.Instr, _ int, err error) {
	i = s.skip(i)

	if i == len(s.b) || s.b[i] == '\n' || s.b[i] == '}' {
		return s.f.NewInstr(ir.Ret, "", nil), i, nil
	}

	v, i, err := s.operand(i)
	if err != nil {
		return nil, i, err
	}

	return s.f.NewInstr(ir.Ret, "", nil, v), i, nil
}
