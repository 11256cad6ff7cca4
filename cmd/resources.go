package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// ResourcesCommand prints a fresh hardware/executable snapshot: probed
// GPUs (with reservation applied), CPU thread counts, and the resolved
// mayapy/Render binary paths the command builders will use.
var ResourcesCommand = &cli.Command{
	Name:  "resources",
	Usage: "Print probed GPU/CPU/executable resources",
	Action: func(ctx *cli.Context) error {
		f, err := buildFacade()
		if err != nil {
			return err
		}

		snap := f.Resources()
		fmt.Printf("cpu threads: %d (reserved %d, available %d)\n",
			snap.CPUThreads, snap.ReservedCPUThreads, snap.AvailableCPUThreads())
		fmt.Printf("mayapy:      %s\n", orEmpty(snap.MayapyPath))
		fmt.Printf("render:      %s\n", orEmpty(snap.RenderBinaryPath))

		if len(snap.GPUs) == 0 {
			fmt.Println("gpus:        none detected")
			return nil
		}
		fmt.Println("gpus:")
		for _, g := range snap.GPUs {
			avail := "reserved"
			if g.Available {
				avail = "available"
			}
			fmt.Printf("  [%d] %-24s %6dMB free / %6dMB total  %s\n",
				g.DeviceID, g.Name, g.MemoryFree/1024/1024, g.MemoryTotal/1024/1024, avail)
		}
		return nil
	},
}

func orEmpty(s string) string {
	if s == "" {
		return "(not found)"
	}
	return s
}
