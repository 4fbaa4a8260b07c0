package main

import (
	"os"

	"github.com/roach88/propgroups/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewRootCommand(), os.Stderr))
}
