package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/vusec/canonptrs-prelim/compiler"
	"github.com/vusec/canonptrs-prelim/compiler/format"
	"github.com/vusec/canonptrs-prelim/compiler/ir"
	"github.com/vusec/canonptrs-prelim/compiler/parse"
)

func main() {
	instrumentCmd := &cli.Command{
		Name:   "instrument",
		Action: instrumentAct,
		Args:   cli.Args{},
	}

	printCmd := &cli.Command{
		Name:   "print",
		Action: printAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "canonptr",
		Description: "canonptr rewrites IR so address computations carry their offset in the pointer high bits",
		Commands: []*cli.Command{
			instrumentCmd,
			printCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func instrumentAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		obj, err := compiler.InstrumentFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "instrument %v", a)
		}

		fmt.Printf("%s", obj)
	}

	return nil
}

func printAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		m, err := parse.Module(ctx, a, text)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		err = ir.Verify(m)
		if err != nil {
			return errors.Wrap(err, "verify %v", a)
		}

		obj, err := format.Format(ctx, nil, m)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		fmt.Printf("%s", obj)
	}

	return nil
}
