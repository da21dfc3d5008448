package main

import (
	"os"

	"github.com/Scofield321/cipherford/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
