package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// CancelCommand requests cancellation of one job, or every non-terminal
// job with --all. Cancellation is asynchronous: this command returns as
// soon as the request is enqueued, without waiting for the job's
// process to actually exit.
var CancelCommand = &cli.Command{
	Name:      "cancel",
	Usage:     "Cancel a running or queued render job",
	ArgsUsage: "<job-id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Cancel every non-terminal job instead of a single job id",
		},
	},
	Action: func(ctx *cli.Context) error {
		f, err := buildFacade()
		if err != nil {
			return err
		}

		if ctx.Bool("all") {
			f.StopAll()
			fmt.Println("cancellation requested for all jobs")
			return nil
		}

		if ctx.NArg() < 1 {
			return fmt.Errorf("usage: batchrender cancel <job-id> (or --all)")
		}
		jobID := ctx.Args().Get(0)
		f.Cancel(jobID)
		fmt.Printf("cancellation requested for %s\n", jobID)

		// Give the Facade's single scheduler instance in this
		// short-lived process a moment to deliver the request before
		// exiting; there is no persistent connection to wait on.
		time.Sleep(100 * time.Millisecond)
		return nil
	},
}
