// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command taskflow runs the research task stage graph as an HTTP service.
//
// Usage:
//
//	taskflow serve --config config.yaml
//	taskflow serve --port 9090
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/taskflow/pkg/api"
	"github.com/kadirpekel/taskflow/pkg/broadcast"
	"github.com/kadirpekel/taskflow/pkg/checkpoint"
	"github.com/kadirpekel/taskflow/pkg/config"
	"github.com/kadirpekel/taskflow/pkg/dispatcher"
	"github.com/kadirpekel/taskflow/pkg/llms"
	"github.com/kadirpekel/taskflow/pkg/logger"
	"github.com/kadirpekel/taskflow/pkg/observability"
	"github.com/kadirpekel/taskflow/pkg/scratchpad"
	"github.com/kadirpekel/taskflow/pkg/server"
	"github.com/kadirpekel/taskflow/pkg/task"
	"github.com/kadirpekel/taskflow/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the task API server."`

	Config    string `short:"c" help:"Path to YAML config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("taskflow version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP API server, the background dispatcher, and the
// observer broadcast registry.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	dbPool := config.NewDBPool()
	defer dbPool.Close()

	db, err := dbPool.Get(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	taskStore := task.NewStore(db, cfg.Database.Dialect())
	if err := taskStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure task schema: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	scratch := scratchpad.New(redisClient, time.Duration(cfg.Redis.ScratchpadTTLSeconds)*time.Second)
	checkpoints := checkpoint.New(redisClient)

	provider, err := llms.NewProviderFromConfig(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}

	engine := workflow.New(
		workflow.NewLLMAnalyzer(provider),
		workflow.NewLLMResearcher(provider),
		workflow.NewLLMWriter(provider),
		scratch,
		checkpoints,
	)

	events := broadcast.New()

	metrics, err := observability.NewMetrics(&cfg.Observability.Metrics)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	disp := dispatcher.New(cfg.Dispatcher, engine, taskStore, events)
	disp.Start(ctx)
	defer disp.Stop()

	apiServer := api.New(taskStore, disp, events, metrics, pingerFunc(db.PingContext), redisPinger{redisClient}, cfg.Server.CORS)
	httpServer := server.New(cfg.Server, apiServer.Handler())

	printBanner()
	fmt.Printf("\n%staskflow server ready!%s\n", greenColor, resetColor)
	fmt.Printf("   API:      http://%s/api/v1/tasks\n", httpServer.Address())
	fmt.Printf("   Health:   http://%s/health\n", httpServer.Address())
	if metrics != nil {
		fmt.Printf("   Metrics:  http://%s/metrics\n", httpServer.Address())
	}
	fmt.Printf("   Storage:  %s (%s)\n", cfg.Database.Driver, cfg.Database.Database)
	fmt.Printf("   Redis:    %s\n", cfg.Redis.Addr)
	fmt.Printf("   Workers:  %d\n", cfg.Dispatcher.Workers)
	fmt.Println("\nPress Ctrl+C to stop")

	return httpServer.Start(ctx)
}

// pingerFunc adapts a context-taking ping function to api.Pinger.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping() error { return f(context.Background()) }

// redisPinger adapts *redis.Client to api.Pinger.
type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping() error { return p.client.Ping(context.Background()).Err() }

const (
	greenColor = "\033[38;2;16;185;129m"
	resetColor = "\033[0m"
)

// printBanner prints a colored banner, skipped for non-terminal stdout.
func printBanner() {
	fileInfo, err := os.Stdout.Stat()
	if err != nil || (fileInfo.Mode()&os.ModeCharDevice) == 0 {
		return
	}

	banner := `
▀█▀ ▄▀█ █▀ █▄▀ █▀▀ █░░ █▀█ █░█░█
░█░ █▀█ ▄█ █░█ █▀░ █▄▄ █▄█ ▀▄▀▄▀
`
	fmt.Printf("%s%s%s\n", greenColor, banner, resetColor)
}

func main() {
	if len(os.Args) > 1 && os.Args[1] != "version" {
		printBanner()
	}

	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("taskflow"),
		kong.Description("taskflow - asynchronous research task engine"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
