// Backdrop - adaptive colour-processing engine for animated backgrounds
//
// Backdrop turns the colours of the currently playing artwork into an
// animated background, choosing its rendering strategies from device
// capability, configuration and the music.
package main

import (
	"os"

	"github.com/jmylchreest/backdrop/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
