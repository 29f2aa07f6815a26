package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	flags "github.com/jessevdk/go-flags"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type flagOptions struct {
	Port        int     `long:"port" default:"8001" description:"HTTP port serving /health"`
	GRPCPort    int     `long:"grpc-port" description:"also serve the gRPC health service on this port"`
	Status      string  `long:"status" default:"healthy" description:"status reported by /health"`
	SlowMs      int     `long:"slow-ms" description:"delay every health response by this many milliseconds"`
	CPUUsage    float64 `long:"cpu-usage" default:"0.2" description:"cpu_usage reported in metrics"`
	RunDuration int     `long:"run-duration" description:"Duration in seconds to run (debug feature)"`
	MemoryMB    int     `long:"memory-mb" description:"Memory in Megabytes to allocate (debug feature)"`
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

	fmt.Printf("Running demo service, opts: %+v...\n", opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if opts.RunDuration > 0 {
		fmt.Printf("Using RUN DURATION of %d seconds\n", opts.RunDuration)
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	var ballast []byte
	if opts.MemoryMB > 0 {
		fmt.Printf("Using MEMORY MB of %d Megabytes\n", opts.MemoryMB)
		ballast = make([]byte, opts.MemoryMB*1024*1024)
		for i := range ballast {
			ballast[i] = 1
		}
	}
	memoryUsage := func() float64 {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		if stats.Sys == 0 {
			return 0
		}
		return float64(stats.HeapAlloc) / float64(stats.Sys)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		if opts.SlowMs > 0 {
			time.Sleep(time.Duration(opts.SlowMs) * time.Millisecond)
		}
		code := http.StatusOK
		if opts.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":       opts.Status,
			"cpu_usage":    opts.CPUUsage,
			"memory_usage": memoryUsage(),
			"ballast_mb":   len(ballast) / (1024 * 1024),
		})
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", opts.Port), Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP server failed: %v\n", err)
			os.Exit(1)
		}
	}()

	var grpcServer *grpc.Server
	if opts.GRPCPort > 0 {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.GRPCPort))
		if err != nil {
			fmt.Printf("gRPC listen failed: %v\n", err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		healthServer := health.NewServer()
		if opts.Status != "healthy" {
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		}
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		go grpcServer.Serve(listener)
	}

	// Enable signal handling
	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	fmt.Printf("Demo service is ready, port: %d, grpc port: %d\n", opts.Port, opts.GRPCPort)

	select {
	case receivedSignal := <-sig:
		fmt.Printf("Demo service received signal: %v\n", receivedSignal)
	case <-ctx.Done():
		fmt.Printf("Demo service timed out\n")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	server.Shutdown(shutdownCtx)
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	fmt.Printf("Demo service stopped\n")
}
