package main

import (
	"os"

	"github.com/paifgx/quizdom-sub003/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
