package main

import (
	"fmt"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	"tweetsmith/internal/model"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", model.Kind(err), err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	st := &state{}
	return &cli.App{
		Name:    "tweetsmith",
		Usage:   "generate, deduplicate and publish scheduled posts to X",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config",
				Value:   "./tweetsmith.yaml",
				EnvVars: []string{"TWEETSMITH_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log level (debug, info, warn, error)",
			},
		},
		Before:   st.before,
		After:    st.after,
		Commands: st.commands(),
	}
}
