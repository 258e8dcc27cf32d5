package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"taskarchitect/internal/app"
	"taskarchitect/internal/board"
	"taskarchitect/internal/config"
	"taskarchitect/internal/db"
	"taskarchitect/internal/domain"
	"taskarchitect/internal/logging"
	"taskarchitect/internal/mcp"
	"taskarchitect/internal/repo"
	"taskarchitect/internal/server"
	"taskarchitect/internal/ui"
	taskarchsdk "taskarchitect/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "ta",
	Short: "Task Architect CLI",
	Long: `Task Architect keeps a to-do list and breaks goals down into tasks.
- Tasks: a title and a done flag. Tasks you type are manual; tasks from a goal carry an AI badge and the prompt that produced them.
- Magic add: describe a goal ("plan a birthday party") and the generator returns a short list of concrete steps.
- Workspace: the .taskarch directory holding the SQLite database, the board log and nothing else.
- Server: 'ta serve' exposes the same list over HTTP; 'ta board --server URL' and 'ta task --server URL' talk to it.
- Event log: every change is recorded, view with 'ta log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// .env values never override variables already set in the environment.
	_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
	viper.SetEnvPrefix("TASKARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("config", "", "config file (defaults to taskarch.yml or taskarch.toml in the workspace)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(remoteCmd())
	rootCmd.AddCommand(mcpCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var webhookInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = strings.TrimRight(basePath, "/")
			}
			logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Prefix: "serve"})
			return withEnv(cmd.Context(), cfg, func(ctx context.Context, env *app.Env) error {
				handler, err := server.New(ctx, server.Config{
					Engine:          env.Engine,
					BasePath:        cfg.Server.BasePath,
					Auth:            server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, Logger: logger},
					CORSOrigins:     cfg.Server.CORSOrigins,
					Webhooks:        cfg.Webhooks,
					WebhookInterval: webhookInterval,
					Logger:          logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						logger.Error("shutdown", "err", err)
					}
				}()
				logger.Info("serving task api",
					"addr", cfg.Server.Addr,
					"base_path", cfg.Server.BasePath,
					"generator", cfg.Generator.Provider,
					"auth", cfg.Auth.JWTSecret != "",
					"webhooks", len(cfg.Webhooks))
				fmt.Printf("Serving Task Architect API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n",
					cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath, cfg.Server.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	cmd.Flags().DurationVar(&webhookInterval, "webhook-interval", 2*time.Second, "webhook polling interval")
	return cmd
}

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Open the interactive task board",
		Long:  "Keys: up/down or k/j move, space or x toggles, d deletes, a adds a task, g describes a goal for magic add, r reloads, q quits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("board needs an interactive terminal; use 'ta task' commands instead")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logPath := filepath.Join(db.StateDir(viper.GetString("workspace")), "board.log")
			f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: f, Prefix: "board"})
			remote := serverURL(cmd)
			return withStore(cmd.Context(), remote, cfg, func(ctx context.Context, store board.Store) error {
				title := "Task Architect"
				if remote != "" {
					title += " @ " + remote
				}
				return ui.RunBoard(ctx, board.New(store, logger), title)
			})
		},
	}
	addServerFlag(cmd)
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks live in the workspace database, or on a server when --server (or TASKARCH_SERVER) is set.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskSetCompletedCmd("done", "Mark a task completed", true))
	task.AddCommand(taskSetCompletedCmd("undo", "Mark a task pending", false))
	task.AddCommand(taskRemoveCmd())
	task.AddCommand(taskGenerateCmd())
	addServerFlag(task)
	return task
}

func taskListCmd() *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfiguredStore(cmd, func(ctx context.Context, store board.Store) error {
				tasks, err := store.ListTasks(ctx)
				if err != nil {
					return err
				}
				if pending {
					filtered := tasks[:0]
					for _, t := range tasks {
						if !t.Completed {
							filtered = append(filtered, t)
						}
					}
					tasks = filtered
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "only tasks not yet completed")
	return cmd
}

func taskAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a manual task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			if title == "" {
				return fmt.Errorf("title is required")
			}
			return withConfiguredStore(cmd, func(ctx context.Context, store board.Store) error {
				t, err := store.CreateTask(ctx, title)
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
	return cmd
}

func taskSetCompletedCmd(use, short string, completed bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfiguredStore(cmd, func(ctx context.Context, store board.Store) error {
				t, err := store.SetCompleted(ctx, args[0], completed)
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
	return cmd
}

func taskRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfiguredStore(cmd, func(ctx context.Context, store board.Store) error {
				if err := store.DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"message": "Task deleted successfully"})
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func taskGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <goal>",
		Short: "Break a goal down into tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return fmt.Errorf("prompt is required")
			}
			return withConfiguredStore(cmd, func(ctx context.Context, store board.Store) error {
				tasks, err := store.GenerateTasks(ctx, prompt)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every task change in the workspace: creations, updates, deletions and generated batches.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), cfg, func(ctx context.Context, env *app.Env) error {
				events, err := env.Engine.RecentEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in taskarch.yml (or taskarch.toml) in the workspace: listen address, bearer auth secret, generator provider and webhooks. TASKARCH_* variables override it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			shown.Auth.JWTSecret = redact(shown.Auth.JWTSecret)
			shown.Generator.APIKey = redact(shown.Generator.APIKey)
			return printJSON(shown)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskarch.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			path := config.Path(viper.GetString("workspace"))
			exists, err := afero.Exists(fs, path)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := afero.WriteFile(fs, path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("no jwt secret configured; set auth.jwt_secret or TASKARCH_JWT_SECRET")
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			token, err := server.SignToken(cfg.Auth.JWTSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token, "subject": subject})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (defaults to --actor-id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func remoteCmd() *cobra.Command {
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Manage the default server",
	}
	remote.AddCommand(&cobra.Command{
		Use:   "use <url>",
		Short: "Set the server used by board and task commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimRight(strings.TrimSpace(args[0]), "/")
			if url == "" {
				return fmt.Errorf("server url is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "TASKARCH_SERVER", url); err != nil {
				return err
			}
			fmt.Printf("Set TASKARCH_SERVER=%s in %s/.env\n", url, workspace)
			return nil
		},
	})
	return remote
}

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the task tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol, so logs go to stderr.
			logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: os.Stderr, Prefix: "mcp"})
			return withEnv(cmd.Context(), cfg, func(ctx context.Context, env *app.Env) error {
				return mcp.Serve(ctx, env.Engine, server.Version, logger)
			})
		},
	}
	return cmd
}

// --- helpers ---

func addServerFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String("server", "", "server base URL (env TASKARCH_SERVER); local workspace when empty")
}

// serverURL resolves the remote server from --server or TASKARCH_SERVER.
func serverURL(cmd *cobra.Command) string {
	if f := cmd.Flag("server"); f != nil && f.Changed {
		return strings.TrimSpace(f.Value.String())
	}
	return strings.TrimSpace(viper.GetString("server"))
}

// loadConfig reads the workspace config and applies TASKARCH_* overrides.
func loadConfig() (*config.Config, error) {
	fs := afero.NewOsFs()
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(fs, path)
	} else {
		cfg, err = config.Load(fs, viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	overrides := []struct {
		key string
		dst *string
	}{
		{"addr", &cfg.Server.Addr},
		{"jwt_secret", &cfg.Auth.JWTSecret},
		{"generator_provider", &cfg.Generator.Provider},
		{"generator_model", &cfg.Generator.Model},
		{"generator_api_key", &cfg.Generator.APIKey},
		{"generator_base_url", &cfg.Generator.BaseURL},
		{"log_level", &cfg.Log.Level},
		{"log_format", &cfg.Log.Format},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(viper.GetString(o.key)); v != "" {
			*o.dst = v
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withEnv(ctx context.Context, cfg *config.Config, fn func(context.Context, *app.Env) error) error {
	env, err := app.Open(ctx, viper.GetString("workspace"), cfg)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

// withStore hands fn a remote store when a server is configured and the
// workspace engine otherwise.
func withStore(ctx context.Context, remote string, cfg *config.Config, fn func(context.Context, board.Store) error) error {
	if remote != "" {
		client := taskarchsdk.New(remote)
		client.BearerToken = viper.GetString("token")
		return fn(ctx, app.RemoteStore{Client: client})
	}
	return withEnv(ctx, cfg, func(ctx context.Context, env *app.Env) error {
		return fn(ctx, app.LocalStore{Engine: env.Engine, ActorID: viper.GetString("actor-id")})
	})
}

func withConfiguredStore(cmd *cobra.Command, fn func(context.Context, board.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withStore(cmd.Context(), serverURL(cmd), cfg, fn)
}

func printTasks(tasks []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Done", "AI", "Created"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Title, checkMark(t.Completed), checkMark(t.IsAIGenerated), t.CreatedAt})
	}
	stats := board.Progress(tasks)
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d / %d completed", stats.Completed, stats.Total), "", "", ""})
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkMark(b bool) string {
	if b {
		return "x"
	}
	return ""
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// setEnvValue sets key in the dotenv file at path, keeping other entries.
func setEnvValue(path, key, value string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		values = map[string]string{}
	}
	values[key] = value
	return godotenv.Write(values, path)
}
