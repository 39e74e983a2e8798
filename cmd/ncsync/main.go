package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"ncsync/internal/db"
	"ncsync/internal/postproc"
	"ncsync/internal/remote"
	"ncsync/internal/sync"
	"ncsync/pkg/models"
	"ncsync/pkg/version"
)

const (
	exitCompletedWithErrors = 1
	exitInterrupted         = 130
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "ncsync",
		Usage:                "Media file synchronization to a Nextcloud host over SSH",
		Version:              version.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "sync",
				Usage: "Synchronize local media files to the Nextcloud destination",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "host",
						Usage:    "Nextcloud server IP or hostname",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "user",
						Usage:    "SSH username on the Nextcloud server",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "port",
						Usage: "SSH port",
						Value: 22,
					},
					&cli.StringFlag{
						Name:  "ssh-key",
						Usage: "Path to the SSH private key (password prompt when omitted)",
					},
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Local source directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "dest",
						Usage:    "Destination path on the Nextcloud server",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "extensions",
						Usage: "Comma-separated list of extensions to sync (default: all media extensions)",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to the SQLite sync database",
						Value: "nextcloud_sync.db",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Simulate the sync without transferring files",
					},
					&cli.Int64Flag{
						Name:  "resume",
						Usage: "Resume a specific sync session by ID",
					},
					&cli.BoolFlag{
						Name:  "force-new",
						Usage: "Start fresh, marking any incomplete session as interrupted",
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip confirmation prompts",
					},
					&cli.StringFlag{
						Name:  "log-file",
						Usage: "Also write logs to this file (rotated)",
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Enable debug logging",
					},
				},
				Action: runSync,
			},
			{
				Name:  "reports",
				Usage: "Show recent sync sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to the SQLite sync database",
						Value: "nextcloud_sync.db",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of sessions to show",
						Value: 10,
					},
				},
				Action: showReports,
			},
			{
				Name:  "detail",
				Usage: "Show details of one sync session",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to the SQLite sync database",
						Value: "nextcloud_sync.db",
					},
					&cli.Int64Flag{
						Name:     "id",
						Usage:    "Sync session ID",
						Required: true,
					},
				},
				Action: showDetail,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if _, ok := err.(cli.ExitCoder); ok {
			cli.HandleExitCoder(err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSync(c *cli.Context) error {
	if err := validateSyncArgs(c); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger, cleanup, err := buildLogger(c.String("log-file"), c.Bool("verbose"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer cleanup()

	store, err := db.New(c.String("db"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open database: %v", err), 1)
	}
	defer store.Close()

	dryRun := c.Bool("dry-run")
	host := c.String("host")
	user := c.String("user")

	printConfigSummary(c)

	if !dryRun && !c.Bool("yes") && c.Int64("resume") == 0 && !c.Bool("force-new") {
		prompt := fmt.Sprintf("About to start a REAL sync to %s. Proceed?", host)
		if !stdinConfirm(prompt) {
			fmt.Println("Sync cancelled. Use --dry-run to test without transferring files.")
			return nil
		}
	}

	transport := remote.NewSSH(remote.SSHConfig{
		Host:         host,
		Port:         c.Int("port"),
		User:         user,
		KeyPath:      c.String("ssh-key"),
		PasswordFunc: passwordPrompt(user, host),
	})

	var extensions []string
	if raw := c.String("extensions"); raw != "" {
		extensions = strings.Split(raw, ",")
	}

	confirm := stdinConfirm
	if c.Bool("yes") {
		confirm = func(string) bool { return true }
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer := sync.NewSyncer(store, transport, sync.Options{
		SourceRoot: c.String("source"),
		DestRoot:   c.String("dest"),
		Extensions: extensions,
		DryRun:     dryRun,
		ForceNew:   c.Bool("force-new"),
		ResumeID:   c.Int64("resume"),
		Confirm:    confirm,
		Logger:     logger,
		Progress:   true,
		PostProc:   postproc.New(transport, logger, "", ""),
	})

	result, err := syncer.Run(ctx)
	if result != nil {
		printSyncReport(result, dryRun)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("sync failed: %v", err), 1)
	}
	if result.Interrupted() {
		fmt.Printf("\nSync interrupted. Progress saved in the database (ID: %d).\n", result.SyncID)
		fmt.Println("Run the same command again to resume where it stopped.")
		return cli.Exit("", exitInterrupted)
	}
	if result.Status == models.StatusCompletedWithErrors {
		return cli.Exit("", exitCompletedWithErrors)
	}
	return nil
}

func validateSyncArgs(c *cli.Context) error {
	source := c.String("source")
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("source path not found: %s", source)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path is not a directory: %s", source)
	}

	if key := c.String("ssh-key"); key != "" {
		info, err := os.Stat(key)
		if err != nil {
			return fmt.Errorf("SSH key not found: %s", key)
		}
		if info.IsDir() {
			return fmt.Errorf("SSH key is not a file: %s", key)
		}
	}

	if dbPath := c.String("db"); dbPath != "" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("cannot create database directory: %v", err)
			}
		}
	}
	return nil
}

// buildLogger creates the run logger: text records to stderr and, when
// logFile is set, into a rotating file as well.
func buildLogger(logFile string, verbose bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	cleanup := func() {}
	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
		}
		w = io.MultiWriter(os.Stderr, rotator)
		cleanup = func() { rotator.Close() }
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), cleanup, nil
}

func passwordPrompt(user, host string) func() (string, error) {
	return func() (string, error) {
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", user, host)
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(password), nil
	}
}

func stdinConfirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func printConfigSummary(c *cli.Context) {
	fmt.Println("Nextcloud media sync")
	fmt.Printf("  Server:      %s@%s:%d\n", c.String("user"), c.String("host"), c.Int("port"))
	fmt.Printf("  Source:      %s\n", c.String("source"))
	fmt.Printf("  Destination: %s\n", c.String("dest"))
	if key := c.String("ssh-key"); key != "" {
		fmt.Printf("  SSH key:     %s\n", key)
	} else {
		fmt.Println("  Auth:        password (will be prompted)")
	}
	if exts := c.String("extensions"); exts != "" {
		fmt.Printf("  Extensions:  %s\n", exts)
	} else {
		fmt.Println("  Extensions:  all media extensions")
	}
	fmt.Printf("  Database:    %s\n", c.String("db"))
	if c.Bool("dry-run") {
		fmt.Println("  Mode:        DRY-RUN (simulation, nothing will be transferred)")
	}
	fmt.Println()
}

func showReports(c *cli.Context) error {
	store, err := db.New(c.String("db"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open database: %v", err), 1)
	}
	defer store.Close()

	sessions, err := store.RecentSessions(c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load sessions: %v", err), 1)
	}
	printRecentSessions(sessions)
	return nil
}

func showDetail(c *cli.Context) error {
	store, err := db.New(c.String("db"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open database: %v", err), 1)
	}
	defer store.Close()

	detail, err := store.SessionDetail(c.Int64("id"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	printSessionDetail(detail)
	return nil
}
