package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	cmdCommon "github.com/archfetch/archfetch/cmd/common"
	"github.com/archfetch/archfetch/common"
	"github.com/archfetch/archfetch/pkg/fetchcli"
	"github.com/archfetch/archfetch/pkg/fetchlib"
)

const pollInterval = 500 * time.Millisecond

var (
	getDir       string
	getOutput    string
	getPriority  string
	getChecksum  string
	getUnmetered bool
	getDetach    bool

	getFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "dir, d",
			Usage:       "directory where downloaded files should be saved",
			Destination: &getDir,
		},
		cli.StringFlag{
			Name:        "output, o",
			Usage:       "explicit destination path (single url downloads only)",
			Destination: &getOutput,
		},
		cli.StringFlag{
			Name:        "priority, P",
			Usage:       "task priority: low, normal or high",
			Value:       "normal",
			Destination: &getPriority,
		},
		cli.StringFlag{
			Name:        "checksum",
			Usage:       "expected checksum in algo:hex form (single url downloads only)",
			Destination: &getChecksum,
		},
		cli.BoolFlag{
			Name:        "unmetered",
			Usage:       "only download while on an unmetered network",
			Destination: &getUnmetered,
		},
		cli.BoolFlag{
			Name:        "detach, D",
			Usage:       "enqueue and exit without waiting for completion",
			Destination: &getDetach,
		},
		cli.StringSliceFlag{
			Name:  "header, H",
			Usage: "extra request header in 'Key: Value' form, repeatable",
		},
	}
)

func get(ctx *cli.Context) error {
	target := strings.TrimSpace(ctx.Args().First())
	if target == "" {
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no url or identifier provided"))
	}
	if target == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	if err := fetchcli.EnsureDaemon(); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "get", "ensure_daemon", err)
		return nil
	}
	client, err := fetchcli.NewClient()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "get", "new_client", err)
		return nil
	}

	dir := getDir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			cmdCommon.PrintRuntimeErr(ctx, "get", "getwd", err)
			return nil
		}
	}

	if strings.Contains(target, "://") {
		return getURL(ctx, client, target, dir)
	}
	return getArchive(ctx, client, target, dir)
}

func getURL(ctx *cli.Context, client *fetchcli.Client, url, dir string) error {
	dest := getOutput
	if dest == "" {
		name := url[strings.LastIndex(url, "/")+1:]
		if name == "" {
			return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("cannot derive a file name, use --output"))
		}
		dest = dir + string(os.PathSeparator) + name
	}
	headers, err := parseHeaderFlags(ctx.StringSlice("header"))
	if err != nil {
		return cmdCommon.PrintErrWithCmdHelp(ctx, err)
	}
	res, err := client.Enqueue(url, dest, &fetchcli.EnqueueOpts{
		Headers:       headers,
		Checksum:      getChecksum,
		Priority:      getPriority,
		UnmeteredOnly: getUnmetered,
	})
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "get", "enqueue", err)
		return nil
	}
	fmt.Printf("Queued 1 task (%s)\n", res.ID)
	if getDetach {
		return nil
	}
	return waitForTasks(ctx, client, func() ([]*common.ListItem, error) {
		r, err := client.List("all", "")
		if err != nil {
			return nil, err
		}
		var mine []*common.ListItem
		for _, t := range r.Tasks {
			if t.ID == res.ID {
				mine = append(mine, t)
			}
		}
		return mine, nil
	})
}

// parseHeaderFlags turns repeated "Key: Value" strings into Headers.
func parseHeaderFlags(raw []string) (fetchlib.Headers, error) {
	var h fetchlib.Headers
	for _, s := range raw {
		key, value, ok := strings.Cut(s, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed header %q, want 'Key: Value'", s)
		}
		h.Set(key, strings.TrimSpace(value))
	}
	return h, nil
}

func getArchive(ctx *cli.Context, client *fetchcli.Client, identifier, dir string) error {
	res, err := client.EnqueueArchive(identifier, dir, getPriority, getUnmetered)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "get", "enqueue_archive", err)
		return nil
	}
	fmt.Printf("Queued %d tasks for %s\n", len(res.IDs), res.Identifier)
	if getDetach {
		return nil
	}
	return waitForTasks(ctx, client, func() ([]*common.ListItem, error) {
		r, err := client.List("all", res.Identifier)
		if err != nil {
			return nil, err
		}
		return r.Tasks, nil
	})
}

// waitForTasks polls the daemon and renders an aggregate progress bar
// until every watched task reaches a terminal state.
func waitForTasks(ctx *cli.Context, client *fetchcli.Client, fetch func() ([]*common.ListItem, error)) error {
	p := mpb.New(mpb.WithWidth(64))
	bar := cmdCommon.InitBar(p, "", 0)

	var failed []*common.ListItem
	last := time.Now()
	for {
		tasks, err := fetch()
		if err != nil {
			bar.Abort(false)
			cmdCommon.PrintRuntimeErr(ctx, "get", "poll", err)
			return nil
		}
		var partial, total int64
		pending := 0
		failed = failed[:0]
		for _, t := range tasks {
			partial += t.PartialBytes
			total += t.TotalLength
			switch t.Status {
			case "completed":
			case "error":
				failed = append(failed, t)
			case "paused":
				failed = append(failed, t)
			default:
				pending++
			}
		}
		if total > 0 {
			bar.SetTotal(total, false)
		}
		now := time.Now()
		bar.EwmaSetCurrent(partial, now.Sub(last))
		last = now
		if pending == 0 {
			bar.SetTotal(total, true)
			break
		}
		time.Sleep(pollInterval)
	}
	p.Wait()

	if len(failed) > 0 {
		for _, t := range failed {
			msg := t.Status
			if t.Reason != nil {
				msg = t.Reason.Message
				if t.Reason.Remedy != "" {
					msg += " (" + t.Reason.Remedy + ")"
				}
			}
			fmt.Printf("  %s: %s\n", t.Destination, msg)
		}
		return fmt.Errorf("%d task(s) did not complete", len(failed))
	}
	fmt.Println("All tasks completed.")
	return nil
}
