package main

import (
	"os"

	"tcforge/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
