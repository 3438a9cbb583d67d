package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli"

	cmdCommon "github.com/archfetch/archfetch/cmd/common"
	"github.com/archfetch/archfetch/pkg/fetchcli"
)

var (
	purgeMaxAge int

	purgeFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "max-age, m",
			Usage:       "evict entries unused for this many hours (0 uses the daemon default)",
			Destination: &purgeMaxAge,
		},
	}
)

func stats(ctx *cli.Context) error {
	client, err := fetchcli.NewClient()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "stats", "new_client", err)
		return nil
	}

	cs, err := client.CacheStats()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "stats", "cache_stats", err)
		return nil
	}
	fmt.Println("Metadata cache:")
	fmt.Printf("  entries: %d (%d pinned)\n", cs.Entries, cs.Pinned)
	fmt.Printf("  files:   %d, total size %d bytes\n", cs.TotalFiles, cs.TotalSize)

	im, err := client.IdentifierMetrics()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "stats", "identifier_metrics", err)
		return nil
	}
	fmt.Println("Identifier verification:")
	fmt.Printf("  verifications: %d (standard %d, strict %d, alternative %d, miss %d)\n",
		im.TotalVerifications, im.StandardHits, im.StrictHits, im.AlternativeHits, im.CacheMisses)
	fmt.Printf("  api calls:     %d made, %d saved\n", im.APICallsMade, im.APICallsSaved)

	ls, err := client.LimiterStatus()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "stats", "limiter_status", err)
		return nil
	}
	fmt.Println("Request limiter:")
	fmt.Printf("  slots: %d/%d in use, %d waiting\n", ls.Active, ls.MaxConcurrent, ls.Waiting)
	if ls.CooldownSeconds > 0 {
		fmt.Printf("  server cooldown: %ds remaining\n", ls.CooldownSeconds)
	}

	bu, err := client.BandwidthUsage()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "stats", "bandwidth_usage", err)
		return nil
	}
	fmt.Println("Bandwidth:")
	if bu.Unlimited {
		fmt.Println("  budget: unlimited")
	} else {
		fmt.Printf("  budget: %d B/s (%d B/s per active transfer)\n", bu.TotalBudget, bu.PerThrottleRate)
	}
	fmt.Printf("  active transfers: %d\n", bu.ActiveThrottles)
	return nil
}

func pin(ctx *cli.Context) error {
	identifier := ctx.Args().First()
	if identifier == "" {
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no archive identifier provided"))
	}
	client, err := fetchcli.NewClient()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "pin", "new_client", err)
		return nil
	}
	res, err := client.TogglePin(identifier)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "pin", "toggle_pin", err)
		return nil
	}
	if res.Pinned {
		fmt.Printf("Pinned %s (protected from purge).\n", res.Identifier)
	} else {
		fmt.Printf("Unpinned %s.\n", res.Identifier)
	}
	return nil
}

func purge(ctx *cli.Context) error {
	client, err := fetchcli.NewClient()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "purge", "new_client", err)
		return nil
	}
	res, err := client.CachePurge(purgeMaxAge)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "purge", "cache_purge", err)
		return nil
	}
	fmt.Printf("Purged %d stale cache entries.\n", res.Purged)
	return nil
}

func verify(ctx *cli.Context) error {
	identifier := ctx.Args().First()
	if identifier == "" {
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no archive identifier provided"))
	}
	client, err := fetchcli.NewClient()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "verify", "new_client", err)
		return nil
	}
	res, err := client.Verify(identifier)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "verify", "verify", err)
		return nil
	}
	if res.Canonical == identifier {
		fmt.Printf("%s exists.\n", res.Canonical)
	} else {
		fmt.Printf("%s resolves to %s.\n", identifier, res.Canonical)
	}
	return nil
}

func limit(ctx *cli.Context) error {
	client, err := fetchcli.NewClient()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "limit", "new_client", err)
		return nil
	}
	budget := ctx.Args().First()
	if budget == "" {
		usage, err := client.BandwidthUsage()
		if err != nil {
			cmdCommon.PrintRuntimeErr(ctx, "limit", "bandwidth_usage", err)
			return nil
		}
		printUsage(usage.Unlimited, usage.TotalBudget, usage.PerThrottleRate)
		return nil
	}
	usage, err := client.SetBandwidthBudget(budget)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "limit", "set_budget", err)
		return nil
	}
	printUsage(usage.Unlimited, usage.TotalBudget, usage.PerThrottleRate)
	return nil
}

func printUsage(unlimited bool, total, perTransfer int64) {
	if unlimited {
		fmt.Println("Bandwidth budget: unlimited")
		return
	}
	fmt.Printf("Bandwidth budget: %d B/s (%d B/s per active transfer)\n", total, perTransfer)
}
