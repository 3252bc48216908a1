// main.go
//
// Entry point; the Cobra command tree lives in cmd/root.go.

package main

import (
	"github.com/entropic-void/voidsim/cmd"
)

func main() {
	cmd.Execute()
}
