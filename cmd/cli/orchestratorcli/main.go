package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/control"
	"github.com/core-tools/hsu-orchestrator/pkg/domain"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	URL     string        `long:"url" default:"http://localhost:4444" description:"orchestrator base URL"`
	Timeout time.Duration `long:"timeout" default:"30s" description:"request timeout"`
	Retries int           `long:"retries" default:"10" description:"health attempts before giving up"`
	Verbose bool          `long:"verbose" short:"v" description:"debug logging"`
}

type registerCommand struct {
	Port           int    `long:"port" required:"true" description:"service port"`
	Host           string `long:"host" description:"service host"`
	HealthEndpoint string `long:"health-endpoint" default:"/health" description:"health endpoint path or gRPC service name"`
	Protocol       string `long:"protocol" default:"http" description:"http or grpc"`
	Args           struct {
		Service string `positional-arg-name:"service" required:"true"`
	} `positional-args:"yes"`
}

type actionCommand struct {
	Reason string `long:"reason" description:"reason recorded with the action"`
	Args   struct {
		Service string `positional-arg-name:"service" required:"true"`
		Action  string `positional-arg-name:"action" required:"true"`
	} `positional-args:"yes"`
}

type serviceCommand struct {
	Args struct {
		Service string `positional-arg-name:"service" required:"true"`
	} `positional-args:"yes"`
}

type emptyCommand struct{}

func main() {
	var opts flagOptions
	var parser = flags.NewParser(&opts, flags.HelpFlag)

	var (
		register     registerCommand
		action       actionCommand
		intelligence serviceCommand
		reset        serviceCommand
	)
	parser.AddCommand("health", "Show orchestrator health", "", &emptyCommand{})
	parser.AddCommand("services", "List managed services", "", &emptyCommand{})
	parser.AddCommand("decisions", "List recent decisions", "", &emptyCommand{})
	parser.AddCommand("analyze", "Force an analysis pass", "", &emptyCommand{})
	parser.AddCommand("sync", "Force a sync pass", "", &emptyCommand{})
	parser.AddCommand("sync-status", "Show sync status", "", &emptyCommand{})
	parser.AddCommand("register", "Register a service", "", &register)
	parser.AddCommand("action", "Run an action on a service", "", &action)
	parser.AddCommand("intelligence", "Show stored thoughts and insights for a service", "", &intelligence)
	parser.AddCommand("reset", "Reset a service's restart count", "", &reset)

	_, err := parser.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	zapLogger, err := logging.NewZapLogger(logging.ZapOptions{Level: level})
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	logger := logging.ForModule(zapLogger, "orchestrator-client")

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	gateway := control.NewHTTPClientGateway(opts.URL, &http.Client{Timeout: opts.Timeout}, logger)

	health, err := domain.RetryHealth(ctx, gateway, domain.RetryHealthOptions{
		RetryAttempts: opts.Retries,
		RetryInterval: time.Second,
	}, logger)
	if err != nil {
		fmt.Printf("Orchestrator is not reachable: %v\n", err)
		os.Exit(1)
	}

	var result interface{}
	switch parser.Active.Name {
	case "health":
		result = health
	case "services":
		result, err = gateway.Services(ctx)
	case "decisions":
		result, err = gateway.Decisions(ctx)
	case "analyze":
		result, err = gateway.Analyze(ctx)
	case "sync":
		result, err = gateway.SyncForce(ctx)
	case "sync-status":
		result, err = gateway.SyncStatus(ctx)
	case "register":
		result, err = gateway.Register(ctx, fleet.Registration{
			Name:           register.Args.Service,
			Host:           register.Host,
			Port:           register.Port,
			HealthEndpoint: register.HealthEndpoint,
			Protocol:       fleet.Protocol(register.Protocol),
		})
	case "action":
		result, err = gateway.Action(ctx, action.Args.Service, action.Args.Action, action.Reason)
	case "intelligence":
		result, err = gateway.Intelligence(ctx, intelligence.Args.Service)
	case "reset":
		result, err = gateway.ResetService(ctx, reset.Args.Service)
	}
	if err != nil {
		fmt.Printf("Command %s failed: %v\n", parser.Active.Name, err)
		os.Exit(1)
	}

	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))
}
