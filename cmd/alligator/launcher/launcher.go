package launcher

import (
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-alligator/flags"
)

var app = flags.NewApp()

func init() {
	// running without a subcommand serves
	app.Action = serve
	app.Commands = []cli.Command{
		proxyCommand,
		signCommand,
		replayCommand,
		serveCommand,
	}
}

// Launch parses args and runs the selected command.
func Launch(args []string) error {
	return app.Run(args)
}
