package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/core"
)

// clientSession is an engine opened for one client command
type clientSession struct {
	engine  *core.Engine
	account *core.StoreAccount
	logger  *zap.Logger
}

func (s *clientSession) Close() {
	s.account.Close()
	_ = s.logger.Sync()
}

func openSession(ctx context.Context) (*clientSession, error) {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Client commands log to stderr and only when something goes wrong
	if cfg.Log.Level == "" || cfg.Log.Level == "info" || cfg.Log.Level == "debug" {
		cfg.Log.Level = "warn"
	}
	cfg.Log.Format = "console"
	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	engine, account, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &clientSession{engine: engine, account: account, logger: logger}, nil
}

// withSession runs fn against an engine bound to the command's context
func withSession(fn func(ctx context.Context, cmd *cobra.Command, s *clientSession, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(ctx, cmd, s, args)
	}
}

func addClientCommands(root *cobra.Command) {
	lsCmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withSession(runList),
	}
	lsCmd.Flags().IntP("depth", "d", 1, "Levels to descend")
	lsCmd.Flags().Bool("json", false, "Print entries as JSON lines")

	mkdirCmd := &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withSession(runMkdir),
	}

	rmCmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Remove files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withSession(runRemove),
	}
	rmCmd.Flags().BoolP("recursive", "r", false, "Remove directories and their contents")
	rmCmd.Flags().BoolP("dir", "d", false, "Remove empty directories")

	getCmd := &cobra.Command{
		Use:   "get <path> [local-file]",
		Short: "Download a file to a local file or stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  withSession(runGet),
	}
	getCmd.Flags().String("if-match", "", "Only read while the file has this version token")

	putCmd := &cobra.Command{
		Use:   "put <local-file|-> <path>",
		Short: "Upload a local file or stdin",
		Args:  cobra.ExactArgs(2),
		RunE:  withSession(runPut),
	}
	putCmd.Flags().String("if-match", "", "Only replace the file while it has this version token")

	statCmd := &cobra.Command{
		Use:   "stat <path>",
		Short: "Show file metadata or directory existence",
		Args:  cobra.ExactArgs(1),
		RunE:  withSession(runStat),
	}

	root.AddCommand(lsCmd, mkdirCmd, rmCmd, getCmd, putCmd, statCmd)
}

func runList(ctx context.Context, cmd *cobra.Command, s *clientSession, args []string) error {
	path := s.engine.DefaultDirectory()
	if len(args) == 1 {
		path = args[0]
	}
	depth, _ := cmd.Flags().GetInt("depth")
	asJSON, _ := cmd.Flags().GetBool("json")

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for entry, err := range s.engine.EnumerateChildren(ctx, path, depth) {
		if err != nil {
			return err
		}
		if asJSON {
			if err := enc.Encode(entry); err != nil {
				return err
			}
			continue
		}
		printEntry(out, entry)
	}
	return nil
}

func printEntry(out io.Writer, entry core.Entry) {
	if entry.IsDir {
		fmt.Fprintf(out, "d %12s %20s  %s/\n", "-", "-", entry.Path)
		return
	}
	fmt.Fprintf(out, "- %12d %20s  %s\n", entry.Size, entry.LastModified.Local().Format(time.DateTime), entry.Path)
}

func runMkdir(ctx context.Context, cmd *cobra.Command, s *clientSession, args []string) error {
	for _, path := range args {
		if err := s.engine.CreateDirectory(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func runRemove(ctx context.Context, cmd *cobra.Command, s *clientSession, args []string) error {
	recursive, _ := cmd.Flags().GetBool("recursive")
	dir, _ := cmd.Flags().GetBool("dir")

	for _, path := range args {
		if !recursive && !dir && !strings.HasSuffix(path, "/") {
			if err := s.engine.DeleteFile(ctx, path); err != nil {
				return err
			}
			continue
		}

		result, err := s.engine.DeleteDirectory(ctx, path, recursive)
		var pfe *core.PartialFailureError
		if errors.As(err, &pfe) {
			for _, key := range result.FailedKeys() {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %v\n", key, result.Failed[key])
			}
			for _, key := range result.Pending {
				fmt.Fprintf(cmd.ErrOrStderr(), "pending: %s\n", key)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runGet(ctx context.Context, cmd *cobra.Command, s *clientSession, args []string) error {
	token, _ := cmd.Flags().GetString("if-match")
	remote := args[0]

	toStdout := len(args) == 1 || args[1] == "-"
	if token == "" && !toStdout {
		_, err := s.engine.DownloadToLocal(ctx, remote, args[1])
		return err
	}

	var h *core.ReadHandle
	var err error
	if token != "" {
		h, err = s.engine.ReadIfMatch(ctx, remote, backends.VersionToken(token))
	} else {
		h, err = s.engine.OpenReadHandle(ctx, remote)
	}
	if err != nil {
		return err
	}
	defer h.Close()

	if toStdout {
		_, err = io.Copy(cmd.OutOrStdout(), h)
		return err
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, h); err != nil {
		f.Close()
		os.Remove(args[1])
		return err
	}
	return f.Close()
}

func runPut(ctx context.Context, cmd *cobra.Command, s *clientSession, args []string) error {
	token, _ := cmd.Flags().GetString("if-match")
	local, remote := args[0], args[1]

	var (
		version backends.VersionToken
		err     error
	)
	switch {
	case local == "-":
		version, err = s.engine.WriteIfMatch(ctx, remote, backends.VersionToken(token), cmd.InOrStdin(), -1)
	case token == "":
		version, err = s.engine.UploadFromLocal(ctx, local, remote)
	default:
		var f *os.File
		if f, err = os.Open(local); err != nil {
			return err
		}
		defer f.Close()
		info, statErr := f.Stat()
		if statErr != nil {
			return statErr
		}
		version, err = s.engine.WriteIfMatch(ctx, remote, backends.VersionToken(token), f, info.Size())
	}

	var pe *core.PreconditionError
	if errors.As(err, &pe) && pe.Current != "" {
		return fmt.Errorf("%w (current version %s)", err, pe.Current)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), version)
	return nil
}

func runStat(ctx context.Context, cmd *cobra.Command, s *clientSession, args []string) error {
	out := cmd.OutOrStdout()
	path := args[0]

	if !strings.HasSuffix(path, "/") {
		entry, err := s.engine.Stat(ctx, path)
		if err == nil {
			fmt.Fprintf(out, "Path:     %s\nType:     file\nSize:     %d\nModified: %s\nETag:     %s\n",
				entry.Path, entry.Size, entry.LastModified.Format(time.RFC3339), entry.Version)
			return nil
		}
		if !errors.Is(err, core.ErrObjectNotFound) {
			return err
		}
	}

	exists, err := s.engine.DirectoryExists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", path, core.ErrObjectNotFound)
	}
	fmt.Fprintf(out, "Path:     %s\nType:     directory\n", s.engine.Combine(path))
	return nil
}
