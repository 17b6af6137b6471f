package main

import (
	"os"

	"github.com/content-control-plane/ccp/cmd"
)

func main() {
	if err := cmd.RootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
