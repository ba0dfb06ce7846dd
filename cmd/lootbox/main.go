// Command lootbox is the entry point for the sandboxed RPC runtime: scaffold
// a project, start the server, run a script against one, or print its
// discovery documents.
package main

import (
	"github.com/jx-codes/lootbox/internal/cli"
)

func main() {
	cli.Execute()
}
