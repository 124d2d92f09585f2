package main

import (
	"fmt"
	"os"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/server"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	server.Version = Version

	app := newCLIApp(os.Stdin, os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
