package cmd

import (
	"fmt"
	"sync"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/lrctoolbox/batchrender/internal/renderconfig"
)

// RenderCommand submits a batch render from a RenderConfig file and,
// unless --no-wait is given, blocks until every job it spawned reaches
// a terminal state, printing progress and log lines as they arrive.
var RenderCommand = &cli.Command{
	Name:      "render",
	Usage:     "Submit a batch render job from a render config file",
	ArgsUsage: "<render-config.yaml|.json>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-wait",
			Usage: "Submit the batch and exit immediately instead of waiting for completion",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Print every render_log line as it arrives",
		},
	},
	Action: renderAction,
}

func renderAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("usage: batchrender render <render-config.yaml|.json>")
	}

	rc, err := renderconfig.Load(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	f, err := buildFacade()
	if err != nil {
		return err
	}

	verbose := ctx.Bool("verbose")
	f.OnRenderStarted(func(jobID string) {
		fmt.Printf("started  %s\n", jobID)
	})
	f.OnRenderLog(func(jobID, line string) {
		if verbose {
			fmt.Printf("[%s] %s\n", jobID, line)
		}
	})

	// Register the completion tracker before submitting so no
	// render_completed event can arrive before we're listening for it.
	tracker := newCompletionTracker()
	f.OnRenderCompleted(tracker.record)

	ids, err := f.StartBatch(*rc)
	if err != nil {
		return err
	}
	logging.Log.WithFields(logrus.Fields{
		"scene_path": rc.ScenePath,
		"layers":     len(rc.Layers),
		"job_ids":    ids,
	}).Info("batch submitted")
	for _, id := range ids {
		fmt.Printf("queued   %s\n", id)
	}

	if ctx.Bool("no-wait") {
		return nil
	}
	return tracker.wait(ids)
}

// completionTracker records render_completed events as they arrive and
// lets a caller block on a specific set of job ids reaching a terminal
// state, even if some of them completed before the caller started
// waiting.
type completionTracker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	results map[string]bool
}

func newCompletionTracker() *completionTracker {
	t := &completionTracker{results: make(map[string]bool)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *completionTracker) record(jobID string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results[jobID] = success
	status := "completed"
	if !success {
		status = "failed"
	}
	fmt.Printf("%-9s %s\n", status, jobID)
	t.cond.Broadcast()
}

func (t *completionTracker) wait(ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	failed := false
	for _, id := range ids {
		for {
			success, ok := t.results[id]
			if ok {
				if !success {
					failed = true
				}
				break
			}
			t.cond.Wait()
		}
	}
	if failed {
		return fmt.Errorf("one or more jobs did not complete successfully")
	}
	return nil
}
