// Command canvasctl inspects and converts canvas documents offline.
package main

import (
	"os"
)

func main() {
	if err := newCLI().root.Execute(); err != nil {
		os.Exit(1)
	}
}
