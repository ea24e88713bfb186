// Package main is the entry point for the qabot service.
package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/qabot/cmd/qabot/app"
)

func main() {
	if err := app.NewQABotCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
