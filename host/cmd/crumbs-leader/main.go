// Command crumbs-leader drives CRUMBS peripherals from the bus controller:
// it sends and requests messages and encodes, decodes and checks frames
// offline.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
