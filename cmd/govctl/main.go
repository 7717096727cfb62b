package main

import (
	"os"

	"resgov/internal/cli"
)

func main() {
	os.Exit(cli.GovctlMain())
}
