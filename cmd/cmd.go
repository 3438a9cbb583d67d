// Package cmd implements the archfetch command-line interface.
package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	cmdCommon "github.com/archfetch/archfetch/cmd/common"
)

const DESCRIPTION = `Archfetch reliably fetches large multi-file archives over
unreliable connections: resumable downloads, bandwidth budgeting, and
cached archive metadata.`

// Execute runs the CLI with the given arguments.
func Execute(args []string) error {
	cmdCommon.VersionCmdStr = versionString()
	app := cli.App{
		Name:         "Archfetch",
		HelpName:     "archfetch",
		Usage:        "A resilient archive downloader.",
		Version:      fmt.Sprintf("%s-%s", version, BuildType),
		UsageText:    "archfetch <command> [arguments...]",
		Description:  DESCRIPTION,
		OnUsageError: usageErrorCallback,
		Commands: []cli.Command{
			{
				Name:   "daemon",
				Usage:  "run the archfetch daemon in the foreground",
				Action: daemon,
				Flags:  daemonFlags,
			},
			{
				Name:                   "get",
				Aliases:                []string{"g"},
				Usage:                  "download an archive by identifier, or a single file by url",
				Action:                 get,
				OnUsageError:           usageErrorCallback,
				Flags:                  getFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:                   "list",
				Aliases:                []string{"l"},
				Usage:                  "display download tasks",
				Action:                 list,
				OnUsageError:           usageErrorCallback,
				Flags:                  lsFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:    "pause",
				Aliases: []string{"p"},
				Usage:   "pause an active download task",
				Action:  pause,
			},
			{
				Name:    "resume",
				Aliases: []string{"r"},
				Usage:   "resume a paused or failed download task",
				Action:  resume,
			},
			{
				Name:   "cancel",
				Usage:  "cancel a download task and discard its partial data",
				Action: cancel,
			},
			{
				Name:   "verify",
				Usage:  "resolve an archive identifier to its canonical form",
				Action: verify,
			},
			{
				Name:   "stats",
				Usage:  "show cache, limiter, and bandwidth statistics",
				Action: stats,
			},
			{
				Name:   "pin",
				Usage:  "toggle purge protection for a cached archive",
				Action: pin,
			},
			{
				Name:                   "purge",
				Usage:                  "evict stale unpinned archive metadata",
				Action:                 purge,
				Flags:                  purgeFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:   "limit",
				Usage:  "show or set the global bandwidth budget",
				Action: limit,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  cmdCommon.Help,
			},
			{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "prints the installed version of archfetch",
				Action:  cmdCommon.GetVersion,
			},
		},
		UseShortOptionHandling: true,
		HideHelp:               true,
		HideVersion:            true,
	}
	return app.Run(args)
}

func usageErrorCallback(ctx *cli.Context, err error, _ bool) error {
	return cmdCommon.PrintErrWithCmdHelp(ctx, err)
}
