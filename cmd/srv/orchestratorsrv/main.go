package main

import (
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/orchestrator"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string        `long:"config" short:"c" description:"path to the YAML configuration file" required:"true"`
	Port        int           `long:"port" description:"port to listen on, overrides server.port"`
	RunDuration time.Duration `long:"run-duration" description:"stop after this long, e.g. 10m (default: run until signalled)"`
	LogLevel    string        `long:"log-level" description:"debug, info, warn or error, overrides logging.level"`
	Validate    bool          `long:"validate" description:"validate the configuration file and exit"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if opts.Validate {
		cfg, err := orchestrator.LoadAndValidate(opts.Config)
		if err != nil {
			fmt.Printf("Configuration is invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration is valid, port: %d, services: %d, local store: %s, remote store: %s\n",
			cfg.Server.Port, len(cfg.Services), cfg.Stores.Local.Type, cfg.Stores.Remote.Type)
		return
	}

	err = orchestrator.Run(orchestrator.RunOptions{
		ConfigFile:  opts.Config,
		RunDuration: opts.RunDuration,
		Port:        opts.Port,
		LogLevel:    opts.LogLevel,
	})
	if err != nil {
		fmt.Printf("Orchestrator failed: %v\n", err)
		os.Exit(1)
	}
}
