package main

import (
	"fmt"
	"os"

	"github.com/archfetch/archfetch/cmd"
)

func main() {
	if err := cmd.Execute(os.Args); err != nil {
		fmt.Printf("archfetch: %s\n", err.Error())
		os.Exit(1)
	}
}
