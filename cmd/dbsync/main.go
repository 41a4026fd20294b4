// Command dbsync maps JSON records onto CUE-declared entities stored in SQLite.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/dbsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "dbsync: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
