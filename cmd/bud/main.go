// cmd/bud/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"bud/internal/commit"
	"bud/internal/config"
	"bud/internal/diff"
	"bud/internal/errors"
	"bud/internal/logging"
	"bud/internal/repo"
	"bud/internal/watch"
	"bud/shared/types"
	"bud/shared/utils"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logLevel string
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "bud",
	Short: "Bud is a minimal content-addressed version control system",
	Long: `Bud stores file snapshots by content digest, chains them into commits
and shows line diffs between a commit and its parent.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogger,
}

// setupLogger reads log settings from the repository config when there is
// one. --log-level wins over core.log_level.
func setupLogger(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if cwd, err := os.Getwd(); err == nil {
		if root, err := repo.FindRoot(cwd); err == nil {
			if loaded, err := config.Load(filepath.Join(root, repo.DirName, "config")); err == nil {
				cfg = loaded
			}
		}
	}

	level := cfg.Core.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}

	l, err := logging.NewLogger(level, cfg.Core.LogFormat)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger = l.ForCommand(cmd.Name())
	return nil
}

func openRepo() (*repo.Repository, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	return repo.Open(cwd, logger)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new bud repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			hash, _ := cmd.Flags().GetString("hash")
			err = repo.Init(dir, repo.InitOptions{Hash: hash}, logger)
			if errors.Is(err, errors.ErrAlreadyInitialized) {
				fmt.Println("already a bud repository:", filepath.Join(dir, repo.DirName))
				return nil
			}
			if err != nil {
				return fmt.Errorf("initializing repository: %w", err)
			}

			fmt.Println("Initialized empty bud repository in", filepath.Join(dir, repo.DirName))
			return nil
		},
	}
	initCmd.Flags().String("hash", "sha1", "hash algorithm (sha1, sha2-256, sha3-256, blake3)")

	var addCmd = &cobra.Command{
		Use:   "add <path>...",
		Short: "Stage the current content of files",
		Long:  `Stores each file in the object store and records it in the staging index. Directories are added recursively.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			green := color.New(color.FgGreen).SprintFunc()
			for _, path := range args {
				added, err := r.Add(path)
				for _, e := range added {
					fmt.Printf("\t%s %s %s\n", green("+"), e.Path, utils.ShortDigest(e.Digest))
				}
				if err != nil {
					return fmt.Errorf("adding %s: %w", path, err)
				}
			}
			return nil
		},
	}

	var commitCmd = &cobra.Command{
		Use:   "commit [message]",
		Short: "Record the staged files as a new commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, _ := cmd.Flags().GetString("message")
			if len(args) == 1 {
				message = args[0]
			}
			if message == "" {
				return fmt.Errorf("a commit message is required")
			}

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			c, digest, err := r.Commit(message)
			if err != nil {
				return err
			}

			fmt.Printf("[%s] %s (%d files)\n", utils.ShortDigest(digest), c.Message, len(c.Files))
			return nil
		},
	}
	commitCmd.Flags().StringP("message", "m", "", "commit message")

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show the commit chain from HEAD, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			head, err := r.Graph.Head()
			if err != nil {
				return err
			}
			if head == "" {
				fmt.Println("No commits yet")
				return nil
			}

			yellow := color.New(color.FgYellow).SprintFunc()
			for e, err := range r.History.Walk(head) {
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s  %s\n", yellow(e.Digest), e.Commit.Timestamp, e.Commit.Message)
			}
			return nil
		},
	}

	var showDiffCmd = &cobra.Command{
		Use:   "show-diff <commit>",
		Short: "Show the per-file changes a commit made against its parent",
		Long:  `Accepts a full commit digest or an unambiguous prefix of at least four characters.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			digest, err := r.Resolve(args[0])
			if err != nil {
				return err
			}

			diffs, err := r.ShowDiff(digest)
			if err != nil {
				return err
			}

			for _, fd := range diffs {
				printFileDiff(r.Diff, fd)
			}
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "List the entries staged for the next commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			head, err := r.Graph.Head()
			if err != nil {
				return err
			}
			if head == "" {
				fmt.Println("No commits yet")
			} else {
				fmt.Println("HEAD", head)
			}

			staged, err := r.Staged()
			if err != nil {
				return err
			}
			if len(staged) == 0 {
				fmt.Println("Nothing staged")
				return nil
			}

			green := color.New(color.FgGreen).SprintFunc()
			fmt.Println("\nStaged for commit:")
			fmt.Println("  (use \"bud commit <message>\" to record them)")
			for _, e := range staged {
				fmt.Printf("\t%s %s %s\n", green("✓"), e.Path, utils.ShortDigest(e.Digest))
			}
			return nil
		},
	}

	var verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Rehash every stored object and report corrupt ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			corrupt, err := r.Verify()
			if err != nil {
				return err
			}
			if len(corrupt) == 0 {
				fmt.Println("All objects verified")
				return nil
			}

			red := color.New(color.FgRed).SprintFunc()
			for _, d := range corrupt {
				fmt.Printf("\t%s %s\n", red("corrupt"), d)
			}
			return fmt.Errorf("%d corrupt objects", len(corrupt))
		},
	}

	var reflogCmd = &cobra.Command{
		Use:   "reflog",
		Short: "Show HEAD movements, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			moves, err := r.Reflog.List()
			if err != nil {
				return err
			}
			if len(moves) == 0 {
				fmt.Println("No HEAD movements recorded")
				return nil
			}

			for _, m := range moves {
				old := m.Old
				if old == "" {
					old = "(none)"
				}
				fmt.Printf("%s  %s -> %s  %s\n",
					commit.FormatTime(m.Time),
					utils.ShortDigest(old),
					utils.ShortDigest(m.New),
					m.Message,
				)
			}
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Stage files automatically as they are written",
		Long:  `Watches the given paths (the current directory by default) and stages every file that is created or modified, until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			w, err := watch.New(r.Root, args, r, r.Objects.Hasher(), logger.Named("watch"))
			if err != nil {
				return err
			}
			defer w.Close()

			green := color.New(color.FgGreen).SprintFunc()
			w.OnStage = func(e shared.Entry) {
				fmt.Printf("\t%s %s %s\n", green("+"), e.Path, utils.ShortDigest(e.Digest))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Println("Watching for changes (Ctrl-C to stop)")
			return w.Run(ctx)
		},
	}

	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Read or change repository settings",
	}

	var configGetCmd = &cobra.Command{
		Use:   "get <section.key>",
		Short: "Print a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			value, err := config.Get(path, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}

	var configSetCmd = &cobra.Command{
		Use:   "set <section.key> <value>",
		Short: "Change a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if err := config.Set(path, args[0], args[1]); err != nil {
				return err
			}
			logger.Info("config updated", zap.String("key", args[0]), zap.String("value", args[1]))
			return nil
		},
	}

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showDiffCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(reflogCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

func configPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	root, err := repo.FindRoot(cwd)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, repo.DirName, "config"), nil
}

func printFileDiff(engine *diff.Engine, fd repo.FileDiff) {
	header := color.New(color.FgCyan, color.Bold)

	old := "/dev/null"
	if fd.ParentDigest != "" {
		old = "a/" + fd.Path
	}
	stats := diff.Stat(fd.Hunks)
	header.Printf("\ndiff --bud %s b/%s\n", old, fd.Path)
	fmt.Printf("%s..%s +%d -%d\n",
		utils.ShortDigest(fd.ParentDigest), utils.ShortDigest(fd.Digest), stats.Additions, stats.Deletions)

	printColoredDiff(engine.Format(fd.Hunks))
}

func printColoredDiff(text string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		logger.Debug("command failed",
			zap.String("error_type", string(errors.TypeOf(err))),
			zap.Error(err))
	}
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
