package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// StatusCommand prints a point-in-time snapshot of every job the
// current process's scheduler instance knows about. Since the Facade
// keeps no persistent job store, this only reflects jobs submitted by
// a still-running "render --no-wait" invocation sharing this process;
// it is most useful from a long-lived embedder, not this CLI's own
// short-lived submit-and-wait flow.
var StatusCommand = &cli.Command{
	Name:  "status",
	Usage: "Print the status of every known render job",
	Action: func(ctx *cli.Context) error {
		f, err := buildFacade()
		if err != nil {
			return err
		}

		views := f.Status()
		if len(views) == 0 {
			fmt.Println("no jobs")
			return nil
		}

		for _, v := range views {
			line := fmt.Sprintf("%-36s %-9s %-20s %6.1f%%", v.ID, v.State, v.Layer, v.Progress)
			if v.State.IsTerminal() && v.ErrorKind != "" {
				line += fmt.Sprintf(" (%s)", v.ErrorKind)
			}
			fmt.Println(line)
		}
		return nil
	},
}
