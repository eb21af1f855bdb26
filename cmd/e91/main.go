package main

import (
	"os"

	"github.com/alan-christopher/e91/cmd/e91/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
