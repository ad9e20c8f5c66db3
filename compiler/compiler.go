package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/vusec/canonptrs-prelim/compiler/canonptr"
	"github.com/vusec/canonptrs-prelim/compiler/format"
	"github.com/vusec/canonptrs-prelim/compiler/ir"
	"github.com/vusec/canonptrs-prelim/compiler/parse"
)

func InstrumentFile(ctx context.Context, name string) (obj []byte, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Instrument(ctx, name, text)
}

func Instrument(ctx context.Context, name string, text []byte) (obj []byte, err error) {
	m, err := parse.Module(ctx, name, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse text")
	}

	err = InstrumentModule(ctx, m)
	if err != nil {
		return nil, err
	}

	obj, err = format.Format(ctx, nil, m)
	if err != nil {
		return nil, errors.Wrap(err, "format")
	}

	return obj, nil
}

func InstrumentModule(ctx context.Context, m *ir.Module) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "instrument module", "name", m.Name)
	defer tr.Finish("err", &err)

	err = ir.Verify(m)
	if err != nil {
		return errors.Wrap(err, "verify input")
	}

	p := canonptr.New()

	err = p.RunModule(ctx, m)
	if err != nil {
		return errors.Wrap(err, "canonptr")
	}

	err = ir.Verify(m)
	if err != nil {
		return errors.Wrap(err, "verify output")
	}

	return nil
}
