package main

import (
	"os"

	"github.com/tripdesk/syncbridge/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
