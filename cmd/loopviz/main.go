// Command loopviz visualizes the order in which event loop tasks run.
package main

import (
	"context"
	"os"

	"github.com/joeycumines/loopviz/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
