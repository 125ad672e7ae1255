package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"fsnap-go/internal/app"
	"fsnap-go/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// passphraseEnv supplies the passphrase when stdin is not a terminal.
const passphraseEnv = "FSNAP_PASSPHRASE"

// errDirty makes status --exit-code exit with status 2.
var errDirty = errors.New("working tree differs from session")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errDirty):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newApp reads the config and creates an FsnapApp. The caller must defer closeApp.
// name identifies the CLI command being run; mutating commands mirror the
// catalog to the vault on Close.
func newApp(ctx context.Context, name string, mutating bool, params ...string) (*app.FsnapApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config (run 'fsnap config init' first): %w", err)
	}

	op := app.NewOperation(name, mutating, time.Now(), params...)
	a, err := app.NewFsnapApp(ctx, cfg, op, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// closeApp closes a and hands its error to the command unless the command
// already failed. A failed catalog mirror must not exit 0.
func closeApp(a *app.FsnapApp, errp *error) {
	if err := a.Close(); err != nil && *errp == nil {
		*errp = err
	}
}

// readPassphrase prompts on the terminal, or falls back to FSNAP_PASSPHRASE.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for passphrase prompt: set %s", passphraseEnv)
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// unlockPassphrase asks for a passphrase only when the config needs one.
func unlockPassphrase(a *app.FsnapApp) (string, error) {
	if !a.NeedsPassphrase() {
		return "", nil
	}
	return readPassphrase("Passphrase: ")
}

func rootFlag(cmd *cobra.Command) string {
	root, _ := cmd.Flags().GetString("root")
	return root
}

var rootCmd = &cobra.Command{
	Use:           "fsnap",
	Short:         "Snapshot a directory tree and revert it later",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Log Level:  %s\n", cfg.LogLevel)
		fmt.Printf("Chunk Size: %s\n", humanize.IBytes(uint64(cfg.ChunkSize)))
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		if len(cfg.Filesystem.Ignore) > 0 {
			fmt.Printf("Ignore:     %s\n", strings.Join(cfg.Filesystem.Ignore, ", "))
		}
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nProblems:\n%v\n", err)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "keys init", false)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		passphrase, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if os.Getenv(passphraseEnv) == "" {
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := a.SetupKeys(passphrase); err != nil {
			return err
		}
		fmt.Println("Encryption keys created.")
		return nil
	},
}

// vault command
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the vault",
}

var vaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the vault is reachable",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "vault check", false)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.CheckVault(); err != nil {
			return err
		}
		fmt.Println("Vault OK.")
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the files a capture would include",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		root := rootFlag(cmd)
		a, err := newApp(cmd.Context(), "scan", false, root)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		files, err := a.Scan(cmd.Context(), root)
		if err != nil {
			return err
		}

		for _, f := range files {
			fmt.Println(f.Path())
		}
		fmt.Printf("%d file(s)\n", len(files))
		return nil
	},
}

// capture command
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a snapshot of every file under the root",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		root := rootFlag(cmd)
		a, err := newApp(cmd.Context(), "capture", true, root)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		start := time.Now()
		session, err := a.Capture(cmd.Context(), root)
		if err != nil {
			return fmt.Errorf("capture failed: %w", err)
		}

		fmt.Printf("Captured %d file(s) in %s\n", session.FileCount, time.Since(start).Truncate(time.Millisecond))
		fmt.Printf("Session: %s\n", session.ID)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare the working tree with a session",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		root := rootFlag(cmd)
		sessionID, _ := cmd.Flags().GetString("session")
		exitCode, _ := cmd.Flags().GetBool("exit-code")

		a, err := newApp(cmd.Context(), "status", false, root, sessionID)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		passphrase, err := unlockPassphrase(a)
		if err != nil {
			return err
		}

		session, statuses, err := a.Status(cmd.Context(), root, sessionID, passphrase)
		if err != nil {
			return err
		}

		fmt.Printf("Session %s (%s)\n", session.ID, humanize.Time(session.CreatedAt))
		dirty := 0
		for _, s := range statuses {
			switch {
			case s.Missing:
				fmt.Printf("D  %s\n", s.RelativePath)
			case s.Changed:
				fmt.Printf("M  %s\n", s.RelativePath)
			default:
				continue
			}
			dirty++
		}

		if dirty == 0 {
			fmt.Println("No changes.")
			return nil
		}
		fmt.Printf("%d of %d file(s) differ\n", dirty, len(statuses))
		if exitCode {
			return errDirty
		}
		return nil
	},
}

// revert command
var revertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Restore changed or missing files from a session",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		root := rootFlag(cmd)
		sessionID, _ := cmd.Flags().GetString("session")

		a, err := newApp(cmd.Context(), "revert", false, root, sessionID)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		passphrase, err := unlockPassphrase(a)
		if err != nil {
			return err
		}

		reverted, err := a.Revert(cmd.Context(), root, sessionID, passphrase)
		for _, p := range reverted {
			fmt.Printf("reverted  %s\n", p)
		}
		if err != nil {
			return fmt.Errorf("revert failed: %w", err)
		}

		fmt.Printf("Reverted %d file(s)\n", len(reverted))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View capture sessions",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "history", false)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		sessions, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		for _, s := range sessions {
			duration := ""
			if s.FinishedAt.Valid {
				d := s.FinishedAt.Time.Sub(s.CreatedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %s  %-8s  %6d  %-8s  %s\n",
				s.ID,
				s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				s.Status,
				s.FileCount,
				duration,
				s.Root,
			)
		}
		return nil
	},
}

// drop command
var dropCmd = &cobra.Command{
	Use:   "drop SESSION_ID",
	Short: "Delete a session and its snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "drop", true, args[0])
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.Drop(args[0]); err != nil {
			return err
		}
		fmt.Printf("Dropped session %s\n", args[0])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)
	vaultCmd.AddCommand(vaultCheckCmd)

	// root commands
	rootCmd.PersistentFlags().StringP("root", "C", ".", "Directory tree to operate on")
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("session", "s", "", "Session to compare against (default: latest for root)")
	statusCmd.Flags().Bool("exit-code", false, "Exit with status 2 when files differ")
	rootCmd.AddCommand(revertCmd)
	revertCmd.Flags().StringP("session", "s", "", "Session to revert to (default: latest for root)")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of sessions to show")
	rootCmd.AddCommand(dropCmd)
}
