package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"tavern/internal/backend"
	"tavern/internal/config"
	"tavern/internal/logging"
	"tavern/internal/producer"
	"tavern/internal/store"
	"tavern/internal/tools"
	"tavern/internal/types"
	"tavern/internal/worker"
	"tavern/internal/world"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tavern",
	Short: "tavern - durable task queue for chat-avatar agents",
	Long: `tavern runs LLM chat avatars over a durable SQLite-backed task queue.

Producers enqueue generation requests; a worker claims one task at a time,
runs it through the chat backend with one round of world tools (MOVE, USE,
SEARCH, TAKE, DROP), and writes the terminal result back to the queue.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		settings := cfg.Logging.Settings()
		if verbose {
			settings.Enabled = true
			settings.Level = "debug"
		}
		if err := logging.Initialize(settings); err != nil {
			return err
		}
		logging.Boot("tavern starting (config=%s)", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// workerCmd runs the claim-execute-finish loop until interrupted.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the task worker loop",
	Long: `Claims pending tasks one at a time and processes them through the
generation pipeline. Runs until SIGINT or SIGTERM; a task in flight at
shutdown finishes its terminal write before the process exits.`,
	RunE: runWorker,
}

// enqueueCmd inserts one pending task.
var enqueueCmd = &cobra.Command{
	Use:   "enqueue [message]",
	Short: "Enqueue a generation task and print its ID",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnqueue,
}

// awaitCmd polls a task until it reaches a terminal status.
var awaitCmd = &cobra.Command{
	Use:   "await [task-id]",
	Short: "Wait for a task's result",
	Args:  cobra.ExactArgs(1),
	RunE:  runAwait,
}

// sayCmd is enqueue+await in one call.
var sayCmd = &cobra.Command{
	Use:   "say [message]",
	Short: "Enqueue a task and wait for its response",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSay,
}

// statusCmd shows recent tasks or one task in detail.
var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show queue status or one task",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var worldCmd = &cobra.Command{
	Use:   "world",
	Short: "World state commands",
}

var worldSeedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Load avatars, locations, and items from a YAML seed file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWorldSeed,
}

var worldShowCmd = &cobra.Command{
	Use:   "show [avatar]",
	Short: "Show an avatar's location and inventory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorldShow,
}

var (
	// enqueue/say flags
	flagAvatar string
	flagSystem string
	flagModel  string
	flagTools  []string

	// await/say flags
	flagTimeout time.Duration

	// status flags
	flagLimit int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tavern.yaml", "Config file path")

	for _, cmd := range []*cobra.Command{enqueueCmd, sayCmd} {
		cmd.Flags().StringVarP(&flagAvatar, "avatar", "a", "", "Avatar name acting on tool calls (required)")
		cmd.Flags().StringVarP(&flagSystem, "system", "s", "", "System prompt")
		cmd.Flags().StringVarP(&flagModel, "model", "m", "", "Model override (default from config)")
		cmd.Flags().StringSliceVarP(&flagTools, "tools", "t", nil, "Tools to offer (MOVE,USE,SEARCH,TAKE,DROP)")
		cmd.MarkFlagRequired("avatar")
	}
	for _, cmd := range []*cobra.Command{awaitCmd, sayCmd} {
		cmd.Flags().DurationVar(&flagTimeout, "timeout", 5*time.Minute, "How long to wait for the result")
	}
	statusCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "How many recent tasks to list")

	worldCmd.AddCommand(worldSeedCmd)
	worldCmd.AddCommand(worldShowCmd)

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(awaitCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(worldCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	ts, err := store.NewTaskStore(cfg.Queue.DatabasePath)
	if err != nil {
		return err
	}
	defer ts.Close()

	ws, err := world.NewStore(cfg.World.DatabasePath)
	if err != nil {
		return err
	}
	defer ws.Close()

	chat, err := backend.New(cfg.LLM)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry(ws, chat)
	w := worker.New(ts, chat, registry, cfg.Queue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started",
		zap.String("queue", cfg.Queue.DatabasePath),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("worker stopped")
	return nil
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	p, ts, err := openProducer()
	if err != nil {
		return err
	}
	defer ts.Close()

	req, err := buildRequest(strings.Join(args, " "))
	if err != nil {
		return err
	}
	id, err := p.Enqueue(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runAwait(cmd *cobra.Command, args []string) error {
	p, ts, err := openProducer()
	if err != nil {
		return err
	}
	defer ts.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	resp, err := p.AwaitResult(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}

func runSay(cmd *cobra.Command, args []string) error {
	p, ts, err := openProducer()
	if err != nil {
		return err
	}
	defer ts.Close()

	req, err := buildRequest(strings.Join(args, " "))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	resp, err := p.Generate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ts, err := store.NewTaskStore(cfg.Queue.DatabasePath)
	if err != nil {
		return err
	}
	defer ts.Close()

	if len(args) == 1 {
		task, err := ts.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(task, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	tasks, err := ts.List(cmd.Context(), flagLimit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("queue is empty")
		return nil
	}
	for _, task := range tasks {
		line := fmt.Sprintf("%s  %-10s  %s", task.ID, task.Status, task.CreatedAt.Format(time.RFC3339))
		if task.Avatar != "" {
			line += "  avatar=" + task.Avatar
		}
		fmt.Println(line)
	}
	return nil
}

func runWorldSeed(cmd *cobra.Command, args []string) error {
	path := cfg.World.SeedPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no seed file given and world.seed_path not configured")
	}

	seed, err := world.LoadSeed(path)
	if err != nil {
		return err
	}

	ws, err := world.NewStore(cfg.World.DatabasePath)
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.Seed(cmd.Context(), seed); err != nil {
		return err
	}
	fmt.Printf("seeded %d locations, %d avatars, %d items\n",
		len(seed.Locations), len(seed.Avatars), len(seed.Items))
	return nil
}

func runWorldShow(cmd *cobra.Command, args []string) error {
	ws, err := world.NewStore(cfg.World.DatabasePath)
	if err != nil {
		return err
	}
	defer ws.Close()

	avatar, err := ws.Avatar(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s @ %s\n", avatar.Name, avatar.Location)

	items, err := ws.Inventory(cmd.Context(), avatar.Name)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("  (carrying nothing)")
		return nil
	}
	for _, item := range items {
		fmt.Printf("  - %s\n", item.Name)
	}
	return nil
}

func openProducer() (*producer.Producer, *store.TaskStore, error) {
	ts, err := store.NewTaskStore(cfg.Queue.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return producer.New(ts, cfg.Queue), ts, nil
}

// buildRequest assembles a producer request from the enqueue/say flags.
func buildRequest(message string) (producer.Request, error) {
	model := flagModel
	if model == "" {
		model = cfg.LLM.Model
	}

	var defs []types.ToolDefinition
	if len(flagTools) > 0 {
		ws, err := world.NewStore(cfg.World.DatabasePath)
		if err != nil {
			return producer.Request{}, err
		}
		defer ws.Close()

		chat, err := backend.New(cfg.LLM)
		if err != nil {
			return producer.Request{}, err
		}
		registry := tools.NewRegistry(ws, chat)

		names := make([]types.ToolName, 0, len(flagTools))
		for _, raw := range flagTools {
			name := types.ParseToolName(raw)
			if name == types.ToolUnknown {
				return producer.Request{}, fmt.Errorf("unknown tool %q", raw)
			}
			names = append(names, name)
		}
		defs = registry.Definitions(names...)
	}

	return producer.Request{
		Avatar:       flagAvatar,
		Model:        model,
		SystemPrompt: flagSystem,
		Messages:     []types.Message{{Role: types.RoleUser, Content: message}},
		Tools:        defs,
	}, nil
}
