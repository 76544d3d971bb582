// Command indexer runs the watcher's coordination, fetch, and persistence
// pipeline, or operates on it via the status/seed subcommands.
package main

import "github.com/evmwatch/indexer/internal/cli"

func main() {
	cli.Execute()
}
