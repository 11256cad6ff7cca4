package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lrctoolbox/batchrender/orchestrator"
)

// RerenderCommand resubmits a job that has already reached a terminal
// state, optionally overriding its frame range, GPU assignment, or
// render method. It always prints a new job id; the original job's
// record is left untouched. Since each CLI invocation builds its own
// in-memory Facade, the job id must have been submitted earlier in this
// same process (e.g. by "render --no-wait" in a long-lived embedder);
// this one-shot CLI has no persistent job store to look one up across
// separate processes.
var RerenderCommand = &cli.Command{
	Name:      "rerender",
	Usage:     "Resubmit a completed or failed job, optionally with overrides",
	ArgsUsage: "<job-id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "frames",
			Usage: "Override frame expression (e.g. \"1-50\" or \"1,3,5-10\")",
		},
		&cli.IntFlag{
			Name:  "gpu-id",
			Usage: "Override GPU device id (manual GPU mode only)",
		},
		&cli.BoolFlag{
			Name:  "use-gpu",
			Usage: "Override whether the job uses a GPU",
		},
		&cli.StringFlag{
			Name:  "method",
			Usage: "Override render method (auto, native_binary, host_script_custom, host_script_basic)",
		},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return fmt.Errorf("usage: batchrender rerender <job-id>")
		}

		f, err := buildFacade()
		if err != nil {
			return err
		}

		var overrides orchestrator.RerenderOverrides
		if ctx.IsSet("frames") {
			v := ctx.String("frames")
			overrides.FrameExpr = &v
		}
		if ctx.IsSet("gpu-id") {
			v := ctx.Int("gpu-id")
			overrides.GPUID = &v
		}
		if ctx.IsSet("use-gpu") {
			v := ctx.Bool("use-gpu")
			overrides.UseGPU = &v
		}
		if ctx.IsSet("method") {
			v := ctx.String("method")
			overrides.Method = &v
		}

		newID, err := f.Rerender(ctx.Args().Get(0), overrides)
		if err != nil {
			return err
		}
		fmt.Printf("queued   %s\n", newID)
		return nil
	},
}
