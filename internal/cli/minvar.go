package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type minvarCmd struct {
	symbols  string
	style    string
	asJSON   bool
	maxIters int
}

func (*minvarCmd) Name() string     { return "minvar" }
func (*minvarCmd) Synopsis() string { return "compute the minimum variance allocation" }
func (*minvarCmd) Usage() string {
	return `mvp minvar [-symbols A,B,...] [-json] [-style <style>] [-max-iterations N]

  Solves for the long-only, fully invested weights with the lowest annualized
  volatility and prints them together with the solver status. A run that did
  not converge still prints the best weights found and exits with status 1.
`
}

func (c *minvarCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbols, "symbols", "", "Comma separated symbols overriding MVP_SYMBOLS.")
	f.StringVar(&c.style, "style", "auto", "Terminal style for the report; empty prints raw Markdown.")
	f.BoolVar(&c.asJSON, "json", false, "Print the allocation as JSON.")
	f.IntVar(&c.maxIters, "max-iterations", 0, "Override the solver iteration limit.")
}

func (c *minvarCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	a, err := newApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	state, err := a.state(ctx, splitSymbols(c.symbols))
	if err != nil {
		return fail(err)
	}
	if c.maxIters > 0 {
		state.SetMaxIterations(c.maxIters)
	}

	alloc, err := state.MinimumVarianceAllocation(nil)
	if err != nil {
		return fail(err)
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(alloc); err != nil {
			return fail(err)
		}
	} else {
		out, err := render(allocationReport(alloc), c.style)
		if err != nil {
			return fail(err)
		}
		fmt.Print(out)
	}

	if !alloc.Success {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
