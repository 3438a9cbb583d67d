package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"

	cmdCommon "github.com/archfetch/archfetch/cmd/common"
	"github.com/archfetch/archfetch/pkg/fetchcli"
)

var (
	lsStatus  string
	lsArchive string

	lsFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "status, s",
			Usage:       "filter by status: queued, downloading, paused, completed, error or all",
			Value:       "all",
			Destination: &lsStatus,
		},
		cli.StringFlag{
			Name:        "archive, a",
			Usage:       "only show tasks belonging to this archive identifier",
			Destination: &lsArchive,
		},
	}
)

func list(ctx *cli.Context) error {
	client, err := fetchcli.NewClient()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "list", "new_client", err)
		return nil
	}
	res, err := client.List(lsStatus, lsArchive)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "list", "list", err)
		return nil
	}
	if len(res.Tasks) == 0 {
		fmt.Println("No download tasks found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tARCHIVE\tFILE")
	for _, t := range res.Tasks {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\n",
			shortID(t.ID), t.Status, t.Percentage, t.ArchiveID, t.Destination)
	}
	return w.Flush()
}

// shortID truncates a task uuid for display; full IDs still work as
// command arguments.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
