package main

import (
	"os"

	"github.com/jsbundle/jsbundle/cmd"
)

func main() {
	if err := cmd.RootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
