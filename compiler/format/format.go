package format

import (
	"context"
	"fmt"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/vusec/canonptrs-prelim/compiler/ir"
)

// Format renders IR in the textual form parse reads back.
func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	switch x := x.(type) {
	case *ir.Module:
		return formatModule(ctx, b, x)
	case *ir.Func:
		return formatFunc(ctx, b, x)
	case *ir.Block:
		return formatBlock(ctx, b, x)
	case *ir.Instr:
		return formatInstr(ctx, b, x)
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func formatModule(ctx context.Context, b []byte, m *ir.Module) (_ []byte, err error) {
	for _, g := range m.Globals {
		b = app(b, 0, "global @%v %v\n", g.Name(), g.Elem)
	}

	if len(m.Globals) != 0 {
		b = append(b, '\n')
	}

	for i, f := range m.Funcs {
		if i != 0 {
			b = append(b, '\n')
		}

		b, err = formatFunc(ctx, b, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return b, nil
}

func formatFunc(ctx context.Context, b []byte, f *ir.Func) (_ []byte, err error) {
	if f.IsDecl() {
		b = app(b, 0, "decl ")
	}

	b = app(b, 0, "func @%v(", f.Name)

	for i, p := range f.In {
		if i != 0 {
			b = append(b, ", "...)
		}

		if p.Name() == "" {
			b = app(b, 0, "%v", p.Type())
		} else {
			b = app(b, 0, "%v %%%v", p.Type(), p.Name())
		}
	}

	b = append(b, ')')

	if f.Out != nil {
		b = app(b, 0, " %v", f.Out)
	}

	if f.Linkage != ir.External {
		b = app(b, 0, " %v", f.Linkage)
	}

	if f.Attrs != 0 {
		b = app(b, 0, " %v", f.Attrs)
	}

	if f.IsDecl() {
		return append(b, '\n'), nil
	}

	b = append(b, " {\n"...)

	for _, blk := range f.Blocks {
		b, err = formatBlock(ctx, b, blk)
		if err != nil {
			return nil, errors.Wrap(err, "block %v", blk.Name)
		}
	}

	b = append(b, "}\n"...)

	return b, nil
}

func formatBlock(ctx context.Context, b []byte, blk *ir.Block) (_ []byte, err error) {
	b = app(b, 0, "%v:\n", blk.Name)

	for _, x := range blk.Code {
		b, err = formatInstr(ctx, b, x)
		if err != nil {
			return nil, errors.Wrap(err, "%v", x)
		}
	}

	return b, nil
}

func formatInstr(ctx context.Context, b []byte, x *ir.Instr) (_ []byte, err error) {
	b = app(b, 1, "")

	if x.Type() != nil {
		b = app(b, 0, "%v = ", x)
	}

	switch x.Op {
	case ir.Add, ir.Sub, ir.Mul, ir.And, ir.Shl, ir.LShr:
		b = app(b, 0, "%v %v, %v", x.Op, operand(x.Args[0]), operand(x.Args[1]))
	case ir.Neg, ir.SExt, ir.Load, ir.PtrToInt:
		b = app(b, 0, "%v %v", x.Op, operand(x.Args[0]))
	case ir.Store:
		b = app(b, 0, "store %v, %v", operand(x.Args[0]), operand(x.Args[1]))
	case ir.Addr:
		b = app(b, 0, "addr %v, %v", x.Elem, operand(x.Base()))

		for _, idx := range x.Indices() {
			b = app(b, 0, ", %v", operand(idx))
		}
	case ir.IntToPtr:
		b = app(b, 0, "inttoptr %v to %v", operand(x.Args[0]), x.Type())
	case ir.Phi:
		b = app(b, 0, "phi %v", x.Type())

		for i, a := range x.Args {
			if i != 0 {
				b = append(b, ',')
			}

			b = app(b, 0, " [%v, %v]", operand(a), x.Incoming[i].Name)
		}
	case ir.Call, ir.Invoke:
		b = app(b, 0, "%v %v(", x.Op, operand(x.Args[0]))

		for i, a := range x.Args[1:] {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = app(b, 0, "%v", operand(a))
		}

		b = append(b, ')')

		if x.Op == ir.Invoke {
			b = app(b, 0, " to %v unwind %v", x.To.Name, x.Alt.Name)
		}
	case ir.Br, ir.CondBr:
		if len(x.Args) == 0 {
			b = app(b, 0, "br %v", x.To.Name)
		} else {
			b = app(b, 0, "br %v, %v, %v", operand(x.Args[0]), x.To.Name, x.Alt.Name)
		}
	case ir.Ret:
		b = append(b, "ret"...)

		if len(x.Args) != 0 {
			b = app(b, 0, " %v", operand(x.Args[0]))
		}
	default:
		return nil, errors.New("unsupported op: %v", x.Op)
	}

	return append(b, '\n'), nil
}

func operand(v ir.Value) string {
	switch v := v.(type) {
	case *ir.Const:
		return fmt.Sprintf("%v %d", v.Typ, v.Val)
	case *ir.Global:
		return "@" + v.Name()
	case *ir.FuncRef:
		return "@" + v.Name()
	default:
		return "%" + v.Name()
	}
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
