// Command spectrumd runs the node: peer manager, network controller
// and control-surface RPC server described by the package docs under
// this module's root.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

// Version is stamped at build time in a release; left as a constant
// placeholder here since this binary has no build pipeline defined.
var Version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "spectrumd"
	app.Version = Version
	app.Usage = "run a spectrum network node"

	app.Commands = []cli.Command{
		startCommand,
		versionCommand,
	}

	// A bare invocation (no subcommand) behaves like "start", the way
	// lnd's daemon binary runs without requiring an explicit verb.
	app.Action = func(ctx *cli.Context) error {
		os.Exit(runDaemon(ctx.Args()))
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitConfigError)
	}
}

var startCommand = cli.Command{
	Name:  "start",
	Usage: "start the node",
	Action: func(ctx *cli.Context) error {
		os.Exit(runDaemon(ctx.Args()))
		return nil
	},
}

var versionCommand = cli.Command{
	Name:  "version",
	Usage: "print the version and exit",
	Action: func(ctx *cli.Context) error {
		fmt.Println(Version)
		return nil
	},
}
