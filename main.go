// The main package for the sikkimjobs executable.
package main

import (
	"github.com/Abishekkhanal/sikkimjobs/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
