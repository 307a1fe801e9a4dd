package main

import (
	"os"

	"github.com/FACorreiaa/expense-importer/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
