package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/docio"
	"github.com/agentic-research/nsjson/internal/engine"
)

// errReported marks a failure whose message was already printed.
var errReported = errors.New("reported")

const (
	msgUpdated  = "Requested subtree was updated successfully!"
	msgDeleted  = "Requested subtree was deleted successfully!"
	msgPatched  = "Requested subtree was patched successfully!"
	msgNotExist = "Requested subtree does not exist!"
)

type options struct {
	store        string
	path         string
	timeout      time.Duration
	configPath   string
	scriptPrefix string
	verbose      bool

	// fs, when set, replaces the OS filesystem for document files.
	fs billy.Filesystem
}

var rootCmd = newRootCmd(&options{})

func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "nsjson",
		Short:         "nsjson: JSON documents and templates in a hierarchical namespace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&o.store, "store", "zk:127.0.0.1:2181", "Namespace store URL (mem:, sqlite:<file>, zk:<host:port,...>[/chroot])")
	f.StringVarP(&o.path, "path", "p", "/", "Namespace path of the subtree root")
	f.DurationVarP(&o.timeout, "timeout", "t", time.Second, "ZooKeeper session timeout")
	f.StringVar(&o.configPath, "config", "", "Vocabulary config file (JSON, JSONC or YAML)")
	f.StringVar(&o.scriptPrefix, "script-prefix", "", "Script prefix for template resolution (overrides --config)")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Log store calls")

	root.AddCommand(
		newWriteCmd(o),
		newReadCmd(o),
		newDeleteCmd(o),
		newPatchCmd(o),
		newDigestCmd(o),
		newMCPCmd(o),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *options) vocabulary(cmd *cobra.Command) (api.Vocabulary, error) {
	v := api.DefaultVocabulary()
	if o.configPath != "" {
		fs, name := o.file(o.configPath)
		var err error
		if v, err = docio.LoadVocabulary(fs, name); err != nil {
			return v, err
		}
	}
	if cmd.Flags().Changed("script-prefix") {
		v.ScriptPrefix = o.scriptPrefix
	}
	return v, nil
}

// open builds an engine over the configured store. The returned func
// releases the store.
func (o *options) open(cmd *cobra.Command) (*engine.Engine, func(), error) {
	logger := o.logger(cmd)
	vocab, err := o.vocabulary(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(cmd.Context(), o.store, o.timeout, logger)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := closeStore(); err != nil {
			logger.Warn("close store", "err", err)
		}
	}
	return engine.New(store, vocab, logger), release, nil
}

// file maps a document name onto a filesystem. Without an injected fs the
// file's own directory is opened, so relative and absolute names both work.
func (o *options) file(name string) (billy.Filesystem, string) {
	if o.fs != nil || name == "-" {
		return o.fs, name
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return osfs.New(""), name
	}
	return osfs.New(filepath.Dir(abs)), filepath.Base(abs)
}

func (o *options) readDoc(cmd *cobra.Command, name string) (any, error) {
	fs, n := o.file(name)
	return docio.ReadFile(fs, n, cmd.InOrStdin())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// status prints a one-line outcome on stderr, coloured on terminals.
func status(cmd *cobra.Command, ok bool, msg string) {
	w := cmd.ErrOrStderr()
	c := color.New(color.FgGreen)
	if !ok {
		c = color.New(color.FgRed, color.Bold)
	}
	if isTerminal(w) {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	_, _ = c.Fprintln(w, msg)
}

// notExist reports a missing subtree and turns it into a silent exit 1.
func notExist(cmd *cobra.Command) error {
	status(cmd, false, msgNotExist)
	return errReported
}
