package main

import (
	"os"

	"github.com/user/catalog-service/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
