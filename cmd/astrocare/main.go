package main

import (
	"os"

	"github.com/ashureev/astrocare/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
