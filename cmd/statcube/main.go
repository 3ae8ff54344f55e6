// Package main is the statcube CLI entry point.
package main

import (
	"os"

	"github.com/openstats-labs/statcube/internal/cli"

	// Register the analytical adapters.
	_ "github.com/openstats-labs/statcube/pkg/adapters/duckdb"
	_ "github.com/openstats-labs/statcube/pkg/adapters/postgres"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
