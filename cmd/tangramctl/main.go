// Command tangramctl is a thin entry point around internal/cmd's cobra
// command tree.
package main

import "github.com/tangram-go/tangramcore/internal/cmd"

func main() {
	cmd.Execute()
}
