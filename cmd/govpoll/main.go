// Command govpoll runs the Cardano governance poll bot.
package main

import (
	"context"
	"os"

	"github.com/roach88/govpoll/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
