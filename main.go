package main

import (
	"os"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/urfave/cli/v2"

	"github.com/lrctoolbox/batchrender/cmd"
)

func main() {
	app := &cli.App{
		Name:  "batchrender",
		Usage: "Batch render orchestrator: submit, watch, and manage Maya render jobs",
		Commands: []*cli.Command{
			cmd.RenderCommand,
			cmd.StatusCommand,
			cmd.ResourcesCommand,
			cmd.CancelCommand,
			cmd.RerenderCommand,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		// log fatal so we exit with the proper exit code, this is important for containerized deployment health checks
		logging.Log.WithError(err).Fatal("runtime error")
	}
}
