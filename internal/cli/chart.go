package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/aristath/mvportfolio/internal/modules/charts"
)

type chartCmd struct {
	output  string
	symbols string
	title   string
}

func (*chartCmd) Name() string     { return "chart" }
func (*chartCmd) Synopsis() string { return "render the minimum variance allocation as a pie chart" }
func (*chartCmd) Usage() string {
	return `mvp chart -o <file.png> [-symbols A,B,...] [-title <title>]

  Computes the minimum variance allocation and writes it as a PNG pie chart.
`
}

func (c *chartCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "allocation.png", "Output PNG file.")
	f.StringVar(&c.symbols, "symbols", "", "Comma separated symbols overriding MVP_SYMBOLS.")
	f.StringVar(&c.title, "title", "Minimum variance allocation", "Chart title.")
}

func (c *chartCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 || c.output == "" {
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
	alloc, err := state.MinimumVarianceAllocation(nil)
	if err != nil {
		return fail(err)
	}
	if !alloc.Success {
		a.log.Warn().Str("status", alloc.Status).Msg("Charting an allocation that did not converge")
	}

	buf, err := charts.NewRenderer(a.log).AllocationPie(c.title, alloc.Weights)
	if err != nil {
		return fail(err)
	}
	if err := os.WriteFile(c.output, buf, 0644); err != nil {
		return fail(fmt.Errorf("failed to write chart: %w", err))
	}
	fmt.Printf("wrote %s\n", c.output)
	return subcommands.ExitSuccess
}
