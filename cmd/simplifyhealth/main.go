package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/al-bashkir/simplifyhealth/internal/catalog"
	"github.com/al-bashkir/simplifyhealth/internal/cli"
	"github.com/al-bashkir/simplifyhealth/internal/config"
	"github.com/al-bashkir/simplifyhealth/internal/daemon"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	socketPath string
	logLevel   string
	logFormat  string
	watchFlag  bool
)

// Exit codes
const (
	ExitSuccess  = cli.ExitSuccess
	ExitError    = cli.ExitFailure
	ExitConfig   = cli.ExitConfig
	ExitRejected = cli.ExitRejected
)

var rootCmd = &cobra.Command{
	Use:   "simplifyhealth",
	Short: "Simplify Health session daemon and control client",
	Long: `Session daemon for the Simplify Health app.

This binary operates in two roles:
  - serve: Run the daemon that owns the signed-in session and serves the HTTP API
  - control commands (signin, signup, signout, reset-password, status):
    talk to a running daemon over its Unix socket`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session daemon",
	Long: `Start the daemon that owns the session.

The daemon:
  - Connects to the configured identity backend (memory, firebase, oidc)
  - Restores a persisted sign-in, if any
  - Serves the HTTP API, event stream and metrics
  - Listens on a Unix socket for control commands

This mode is typically run as a systemd service.`,
	RunE: runServe,
}

// overrideExitCode is set by subcommands so main() can call os.Exit() after
// cobra finishes.  This avoids calling os.Exit() inside RunE which would
// bypass deferred functions.  -1 means "use default".
var overrideExitCode = -1

var signInCmd = &cobra.Command{
	Use:   "signin <credentials-file>",
	Short: "Sign in with email and password",
	Long: `Sign in through the running daemon.

The credentials file contains:
  Line 1: Email
  Line 2: Password

Missing values are read from SIMPLIFYHEALTH_EMAIL and SIMPLIFYHEALTH_PASSWORD.

Exit codes:
  0 = Signed in
  1 = Error (daemon unreachable, bad input, already signed in)
  4 = Rejected by the identity provider`,
	Args: cobra.ExactArgs(1),
	RunE: runSignIn,
}

var signUpCmd = &cobra.Command{
	Use:   "signup <credentials-file>",
	Short: "Create an account and sign in",
	Long: `Create an account through the running daemon and sign it in.

The credentials file has the same format as for signin.`,
	Args: cobra.ExactArgs(1),
	RunE: runSignUp,
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign the current user out",
	Args:  cobra.NoArgs,
	RunE:  runSignOut,
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <email>",
	Short: "Send password reset instructions",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetPassword,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	Long: `Show whether a user is signed in.

With --watch, print the current state and then every change until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display version, commit hash, and build date.`,
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration file without starting the daemon.

Checks for:
  - Valid YAML syntax
  - Required fields for the selected identity backend
  - Valid URLs and paths
  - A loadable catalog

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

func init() {
	// Global flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "/etc/simplifyhealth/config.yaml",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "",
		"Control socket path - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	statusCmd.Flags().BoolVar(&watchFlag, "watch", false, "Keep printing state changes")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(signInCmd)
	rootCmd.AddCommand(signUpCmd)
	rootCmd.AddCommand(signOutCmd)
	rootCmd.AddCommand(resetPasswordCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if overrideExitCode < 0 {
			overrideExitCode = ExitError
		}
	}

	// If a subcommand set a specific exit code, use it.
	// This is done outside RunE so deferred functions run properly.
	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// loadConfig loads the config file and applies the log flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	// Override log settings from flags if provided
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if socketPath != "" {
		cfg.Listen.Socket = socketPath
	}

	return cfg, nil
}

// runServe starts the daemon
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		overrideExitCode = ExitConfig
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize structured logging based on config
	config.SetupLogging(&cfg.Log)

	slog.Info("starting simplifyhealth daemon",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
		"config", configFile,
	)

	// Create and run daemon
	d, err := daemon.New(cfg, version)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run(context.Background())
}

// controlHandler resolves the socket path. If the config file cannot be
// loaded, the default socket path is used.
func controlHandler() *cli.Handler {
	path := config.DefaultConfig().Listen.Socket
	cfg, err := loadConfig()
	if err == nil {
		path = cfg.Listen.Socket
		config.SetupLogging(&cfg.Log)
	} else {
		slog.Debug("using default socket path", "error", err)
	}
	if socketPath != "" {
		path = socketPath
	}

	return cli.NewHandler(path)
}

// Control commands set exit codes through overrideExitCode, applied in main().

func runSignIn(cmd *cobra.Command, args []string) error {
	overrideExitCode = controlHandler().SignIn(context.Background(), args[0])
	return nil
}

func runSignUp(cmd *cobra.Command, args []string) error {
	overrideExitCode = controlHandler().SignUp(context.Background(), args[0])
	return nil
}

func runSignOut(cmd *cobra.Command, args []string) error {
	overrideExitCode = controlHandler().SignOut(context.Background())
	return nil
}

func runResetPassword(cmd *cobra.Command, args []string) error {
	overrideExitCode = controlHandler().ResetPassword(context.Background(), args[0])
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	overrideExitCode = controlHandler().Status(ctx, watchFlag)
	return nil
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("simplifyhealth version %s\n", version)
	fmt.Printf("  Commit:     %s\n", commit)
	fmt.Printf("  Build date: %s\n", buildDate)
	fmt.Printf("  Go version: %s\n", getGoVersion())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, args []string) error {
	fmt.Printf("Checking configuration: %s\n\n", configFile)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Catalog validation failed:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil
	}

	// Print configuration summary (with secrets redacted)
	red := cfg.Redact()
	fmt.Println("✅ Configuration is valid")
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  Identity Backend: %s\n", red.Identity.Backend)
	switch red.Identity.Backend {
	case config.BackendMemory:
		fmt.Printf("  Seeded Users:     %d\n", len(red.Identity.Memory.Users))
		fmt.Printf("  Latency:          %s\n", red.Identity.Memory.Latency)
	case config.BackendFirebase:
		fmt.Printf("  API Key:          %s\n", red.Identity.Firebase.APIKey)
		fmt.Printf("  Base URL:         %s\n", red.Identity.Firebase.BaseURL)
	case config.BackendOIDC:
		fmt.Printf("  OIDC Issuer:      %s\n", red.Identity.OIDC.Issuer)
		fmt.Printf("  Client ID:        %s\n", red.Identity.OIDC.ClientID)
		fmt.Printf("  Scopes:           %v\n", red.Identity.OIDC.Scopes)
		fmt.Printf("  Username Claims:  %v\n", red.Identity.OIDC.UsernameClaims)
	}
	if red.Identity.Backend != config.BackendMemory {
		fmt.Printf("  Credential File:  %s\n", red.Identity.CredentialFile)
	}
	fmt.Printf("  Catalog:          %s (%d categories)\n", catalogSource(cfg.Catalog.File), len(cat.Categories))
	fmt.Printf("  HTTP Listen:      %s\n", red.Listen.HTTP)
	fmt.Printf("  Unix Socket:      %s\n", red.Listen.Socket)
	fmt.Printf("  Rate Limits:      %g/s burst %d, auth %g/s burst %d\n",
		red.Limits.Rate, red.Limits.Burst, red.Limits.AuthRate, red.Limits.AuthBurst)
	fmt.Printf("  Log Level:        %s\n", red.Log.Level)
	fmt.Printf("  Log Format:       %s\n", red.Log.Format)
	fmt.Printf("  TLS Enabled:      %v\n", red.TLS.Enabled)

	fmt.Println("\n✅ Ready to start daemon")

	return nil
}

func catalogSource(file string) string {
	if file == "" {
		return "embedded"
	}
	return file
}

// getGoVersion returns the Go version used to build the binary
func getGoVersion() string {
	return runtime.Version()
}
