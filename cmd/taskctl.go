package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli"

	cmdCommon "github.com/archfetch/archfetch/cmd/common"
	"github.com/archfetch/archfetch/pkg/fetchcli"
)

func taskAction(ctx *cli.Context, name string, call func(*fetchcli.Client, string) error) error {
	id := ctx.Args().First()
	if id == "" {
		return cmdCommon.PrintErrWithCmdHelp(ctx, errors.New("no task id provided"))
	}
	client, err := fetchcli.NewClient()
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, name, "new_client", err)
		return nil
	}
	if err := call(client, id); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, name, name, err)
		return nil
	}
	fmt.Printf("Task %s: %s requested.\n", id, name)
	return nil
}

func pause(ctx *cli.Context) error {
	return taskAction(ctx, "pause", (*fetchcli.Client).Pause)
}

func resume(ctx *cli.Context) error {
	return taskAction(ctx, "resume", (*fetchcli.Client).Resume)
}

func cancel(ctx *cli.Context) error {
	return taskAction(ctx, "cancel", (*fetchcli.Client).Cancel)
}
