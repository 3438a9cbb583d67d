package main

import (
	"fmt"
	"os"

	"github.com/archfetch/archfetch/cmd"
)

// archfetchd runs the daemon directly, without the CLI front-end.
func main() {
	args := append([]string{os.Args[0], "daemon"}, os.Args[1:]...)
	if err := cmd.Execute(args); err != nil {
		fmt.Printf("archfetchd: %s\n", err.Error())
		os.Exit(1)
	}
}
