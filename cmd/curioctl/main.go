package main

import (
	"fmt"
	"os"

	"github.com/Harshitk-cp/curio/internal/cli"
	"github.com/Harshitk-cp/curio/internal/config"
)

func main() {
	_ = config.Load()
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
