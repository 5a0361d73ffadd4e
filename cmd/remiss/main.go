// Command remiss runs the department case-routing service and its maintenance
// subcommands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/remiss/internal/adapters/server"
	servercommon "github.com/hylla/remiss/internal/adapters/server/common"
	"github.com/hylla/remiss/internal/adapters/storage/sqlite"
	"github.com/hylla/remiss/internal/app"
	"github.com/hylla/remiss/internal/catalog"
	"github.com/hylla/remiss/internal/config"
	"github.com/hylla/remiss/internal/domain"
	"github.com/hylla/remiss/internal/platform"
)

// version stores a package-level helper value.
var version = "dev"

// rootOptions holds global flags shared by all subcommands.
type rootOptions struct {
	configPath  string
	dbPath      string
	catalogPath string
	appName     string
	devMode     bool
}

// runtime bundles the resolved configuration and wired service for one command.
type runtime struct {
	cfg     config.Config
	paths   platform.Paths
	logger  *runtimeLogger
	repo    *sqlite.Repository
	service *app.Service
}

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCommand(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the CLI command tree.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "remiss",
		Short:         "Department workflow routing and documentation locking engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("REMISS_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultAppName := "remiss"
	if envApp := strings.TrimSpace(os.Getenv("REMISS_APP_NAME")); envApp != "" {
		defaultAppName = envApp
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config TOML")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	cmd.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "", "path to template catalog TOML")
	cmd.PersistentFlags().StringVar(&opts.appName, "app", defaultAppName, "application name for config/data path resolution")
	cmd.PersistentFlags().BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newPathsCommand(opts))
	cmd.AddCommand(newTemplatesCommand(opts))
	cmd.AddCommand(newOpenCommand(opts))
	return cmd
}

// newServeCommand builds the HTTP+MCP serve subcommand.
func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			serveCfg := serveradapter.Config{
				HTTPBind:      rt.cfg.Server.Bind,
				APIEndpoint:   rt.cfg.Server.APIEndpoint,
				MCPEndpoint:   rt.cfg.Server.MCPEndpoint,
				ServerName:    opts.appName,
				ServerVersion: version,
			}
			if strings.TrimSpace(httpBind) != "" {
				serveCfg.HTTPBind = httpBind
			}
			if strings.TrimSpace(apiEndpoint) != "" {
				serveCfg.APIEndpoint = apiEndpoint
			}
			if strings.TrimSpace(mcpEndpoint) != "" {
				serveCfg.MCPEndpoint = mcpEndpoint
			}

			rt.logger.Info("serving transports", "http", serveCfg.HTTPBind, "api", serveCfg.APIEndpoint, "mcp", serveCfg.MCPEndpoint)
			adapter := servercommon.NewAppServiceAdapter(rt.service)
			err = serveradapter.Run(cmd.Context(), serveCfg, serveradapter.Dependencies{Cases: adapter})
			if err != nil {
				rt.logger.Error("serve terminated", "err", err)
				return err
			}
			rt.logger.Info("serve shut down cleanly")
			return nil
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (overrides config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (overrides config)")
	return cmd
}

// newPathsCommand builds the resolved-paths subcommand.
func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := resolvePaths(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "catalog: %s\n", paths.CatalogPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			return nil
		},
	}
}

// newTemplatesCommand builds the catalog-inspection subcommand.
func newTemplatesCommand(opts *rootOptions) *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List section templates from the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			depts := rt.service.Departments()
			if strings.TrimSpace(department) != "" {
				depts = []domain.Department{domain.NormalizeDepartment(department)}
			}
			out := cmd.OutOrStdout()
			for _, dept := range depts {
				templates, err := rt.service.TemplatesForDepartment(dept)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "%s (%s)\n", rt.service.DepartmentName(dept), dept)
				for _, tmpl := range templates {
					_, _ = fmt.Fprintf(out, "  %s  %s  (%d fields)\n", tmpl.ID, tmpl.Name, len(tmpl.Fields))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "restrict listing to one department")
	return cmd
}

// newOpenCommand builds the open-case subcommand.
func newOpenCommand(opts *rootOptions) *cobra.Command {
	var (
		title       string
		reference   string
		department  string
		actorName   string
		actorUserID string
	)
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a new case at its originating department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			wf, err := rt.service.OpenCase(cmd.Context(), app.OpenCaseInput{
				Title:       title,
				Reference:   reference,
				Originating: domain.Department(department),
				Actor: domain.Actor{
					Department: domain.NormalizeDepartment(department),
					UserID:     actorUserID,
					Name:       actorName,
				},
			})
			if err != nil {
				return err
			}
			rt.logger.Info("case opened", "case_id", wf.CaseID, "department", wf.CurrentDepartment)

			view := map[string]any{
				"case_id":            wf.CaseID,
				"title":              wf.Title,
				"reference":          wf.Reference,
				"current_department": string(wf.CurrentDepartment),
				"opened_at":          wf.OpenedAt.Format(time.RFC3339),
			}
			payload, err := json.MarshalIndent(view, "", "  ")
			if err != nil {
				return fmt.Errorf("encode case json: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "case title")
	cmd.Flags().StringVar(&reference, "reference", "", "external reference")
	cmd.Flags().StringVar(&department, "department", "", "originating department (required)")
	cmd.Flags().StringVar(&actorName, "actor-name", "", "acting user display name (required)")
	cmd.Flags().StringVar(&actorUserID, "actor-user", "", "acting user identifier")
	_ = cmd.MarkFlagRequired("department")
	_ = cmd.MarkFlagRequired("actor-name")
	return cmd
}

// resolvePaths resolves platform paths for the current flags and env.
func resolvePaths(opts *rootOptions) (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: opts.appName,
		DevMode: opts.devMode,
	})
}

// newRuntime loads config, opens storage, and wires the application service.
func newRuntime(opts *rootOptions, stderr io.Writer) (*runtime, error) {
	paths, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("REMISS_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("REMISS_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}
	catalogPath := strings.TrimSpace(opts.catalogPath)
	catalogOverridden := catalogPath != ""
	if !catalogOverridden {
		if envPath := strings.TrimSpace(os.Getenv("REMISS_CATALOG")); envPath != "" {
			catalogPath = envPath
			catalogOverridden = true
		} else {
			catalogPath = paths.CatalogPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath, catalogPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if catalogOverridden {
		cfg.Catalog.Path = catalogPath
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "config_path", configPath)
	logger.Debug("runtime paths resolved", "data_dir", paths.DataDir, "db_path", cfg.Database.Path, "catalog_path", cfg.Catalog.Path)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Error("catalog load failed", "catalog_path", cfg.Catalog.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("load template catalog: %w", err)
	}
	logger.Info("template catalog loaded", "catalog_path", cfg.Catalog.Path, "departments", len(cat.Departments()))

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")

	svc := app.NewService(repo, cat, uuid.NewString, nil, app.ServiceConfig{
		RequiredDepartments: toDepartments(cfg.RequiredDepartments()),
	})
	logger.Debug("application service initialized", "required_departments", len(cfg.RequiredDepartments()))

	return &runtime{
		cfg:     cfg,
		paths:   paths,
		logger:  logger,
		repo:    repo,
		service: svc,
	}, nil
}

// close releases runtime resources in reverse wiring order.
func (rt *runtime) close() {
	if rt == nil {
		return
	}
	if rt.repo != nil {
		if err := rt.repo.Close(); err != nil {
			rt.logger.Warn("sqlite close failed", "err", err)
		}
	}
	if rt.logger != nil {
		_ = rt.logger.Close()
	}
}

// toDepartments converts config department ids into domain values.
func toDepartments(ids []string) []domain.Department {
	out := make([]domain.Department, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Department(id))
	}
	return out
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// runtimeLogger fans log events to a styled console sink and an optional logfmt file sink.
type runtimeLogger struct {
	sinks     []*charmLog.Logger
	closeFile func() error
	devLog    string
}

// newRuntimeLogger configures runtime log sinks from CLI/config state.
func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(loggingLevelOrDefault(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})
	logger := &runtimeLogger{sinks: []*charmLog.Logger{consoleLogger}}

	devLogPath := strings.TrimSpace(cfg.DevFile)
	if !devMode || devLogPath == "" {
		return logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}

	// Keep file output parseable and unstyled while preserving styled console logs.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// loggingLevelOrDefault falls back to info for blank levels.
func loggingLevelOrDefault(level string) string {
	level = strings.TrimSpace(level)
	if level == "" {
		return "info"
	}
	return level
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// Debug logs a debug event to all configured sinks.
func (l *runtimeLogger) Debug(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Debug(msg, keyvals...)
	}
}

// Info logs an informational event to all configured sinks.
func (l *runtimeLogger) Info(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Info(msg, keyvals...)
	}
}

// Warn logs a warning event to all configured sinks.
func (l *runtimeLogger) Warn(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Warn(msg, keyvals...)
	}
}

// Error logs an error event to all configured sinks.
func (l *runtimeLogger) Error(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Error(msg, keyvals...)
	}
}
