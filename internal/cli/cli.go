// Package cli is the tcforge command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tcforge/internal/config"
	"tcforge/internal/fetch"
	"tcforge/internal/ledger"
	"tcforge/internal/manifest"
	"tcforge/internal/pipeline"
	"tcforge/internal/recipe"
	"tcforge/internal/runner"
	"tcforge/internal/stage"
	"tcforge/internal/ui"
	"tcforge/internal/workspace"
)

// Version is set at link time.
var Version = "dev"

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// app holds the flags shared by every command and what they resolve to.
type app struct {
	configPath   string
	root         string
	manifestPath string
	target       string
	jobs         int
	debug        bool
	verbose      bool

	stdout io.Writer
	cfg    *config.Config
	out    *ui.Printer
}

func defaultConfigPath() string {
	if p := os.Getenv("TCFORGE_CONFIG"); p != "" {
		return p
	}
	return config.DefaultFile
}

// load reads the config; flags win over the file and the environment.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.root != "" {
		cfg.Values["TCFORGE_ROOT"] = a.root
	}
	if a.manifestPath != "" {
		cfg.Values["TCFORGE_MANIFEST"] = a.manifestPath
	}
	if a.target != "" {
		cfg.Values["TCFORGE_TARGET"] = a.target
	}
	if a.jobs > 0 {
		cfg.Values["TCFORGE_JOBS"] = fmt.Sprint(a.jobs)
	}
	if a.debug {
		cfg.Values["TCFORGE_DEBUG"] = "1"
	}
	if a.verbose {
		cfg.Values["TCFORGE_VERBOSE"] = "1"
	}
	if cfg, err = config.FromValues(cfg.Values); err != nil {
		return err
	}
	a.cfg = cfg
	a.out = ui.NewPrinter(a.stdout, cfg.Debug, cfg.Verbose)
	a.out.Debugf("config: root=%s target=%s jobs=%d\n", cfg.Root, cfg.Target, cfg.Jobs)
	return nil
}

func (a *app) layout() workspace.Layout {
	return workspace.NewLayout(a.cfg.Root, a.cfg.Prefix)
}

func (a *app) manifest() (*manifest.Manifest, error) {
	if a.cfg.Manifest == "" {
		return manifest.Default(), nil
	}
	return manifest.Load(a.cfg.Manifest)
}

// objectStore returns the configured S3 store, or nil when none is set up.
func (a *app) objectStore(ctx context.Context) fetch.ObjectStore {
	if !a.cfg.S3.Configured() {
		return nil
	}
	store, err := fetch.NewS3Client(ctx, a.cfg.S3, a.cfg.Debug)
	if err != nil {
		a.out.Warn("s3 storage disabled: %v", err)
		return nil
	}
	return store
}

// pipeline wires the driver and its executor for the current config.
func (a *app) pipeline(ctx context.Context) (*pipeline.Driver, *stage.Executor, error) {
	m, err := a.manifest()
	if err != nil {
		return nil, nil, err
	}
	layout := a.layout()
	store := ledger.NewFileLedger(layout.Status)

	var mirror io.Writer
	if a.out.Verbose() {
		mirror = a.out.Writer()
	}
	var progress io.Writer
	if term.IsTerminal(int(os.Stderr.Fd())) {
		progress = os.Stderr
	}

	fetcher := fetch.New(fetch.Options{
		GNUMirror: a.cfg.GNUMirror,
		Store:     a.objectStore(ctx),
		Progress:  progress,
	})
	book := recipe.New(recipe.Settings{
		Target: a.cfg.Target,
		Prefix: a.cfg.InstallPrefix(),
		Jobs:   a.cfg.Jobs,
		Nice:   a.cfg.Nice,
		Vars:   m.Vars,
	}, fetcher)
	exec := stage.NewExecutor(store, runner.NewRunner(mirror), a.out, a.cfg.TailLines)

	return pipeline.New(pipeline.Options{
		Manifest: m,
		Layout:   layout,
		Store:    store,
		Executor: exec,
		Commands: book,
		Out:      a.out,
	}), exec, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tcforge",
		Short:         "Resumable cross-toolchain build orchestrator",
		Long:          "tcforge downloads, configures, builds and installs a cross toolchain one stage at a time, recording each completed stage so an interrupted build resumes where it stopped.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", defaultConfigPath(), "config file")
	flags.StringVarP(&a.root, "root", "r", "", "workspace directory (TCFORGE_ROOT)")
	flags.StringVarP(&a.manifestPath, "manifest", "m", "", "manifest file, YAML or TOML (TCFORGE_MANIFEST)")
	flags.StringVarP(&a.target, "target", "t", "", "target triplet (TCFORGE_TARGET)")
	flags.IntVarP(&a.jobs, "jobs", "j", 0, "make parallelism (TCFORGE_JOBS)")
	flags.BoolVarP(&a.debug, "debug", "d", false, "debug output")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "mirror stage output to the console")

	root.AddCommand(
		newBuildCmd(a),
		newPlanCmd(a),
		newStatusCmd(a),
		newLogsCmd(a),
		newChecksumCmd(a),
		newMirrorCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	go func() {
		select {
		case sig := <-sigs:
			ui.NewPrinter(os.Stderr, false, false).Error("Received %v. Stopping after the running stage is killed", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		// second signal: do not wait for cleanup
		select {
		case <-sigs:
			os.Exit(exitInterrupted)
		case <-time.After(30 * time.Second):
		}
	}()

	a := &app{stdout: os.Stdout}
	err := newRootCmd(a).ExecuteContext(ctx)
	return exitCode(a, err)
}

func exitCode(a *app, err error) int {
	if err == nil {
		return exitOK
	}
	out := a.out
	if out == nil {
		out = ui.NewPrinter(os.Stderr, false, false)
	}
	var serr *stage.Error
	switch {
	case errors.Is(err, context.Canceled):
		out.Error("interrupted: %v", err)
		return exitInterrupted
	case errors.As(err, &serr):
		out.Error("build stopped: %v", serr)
		out.Info("logs: %s, %s", serr.Artifacts.Stdout, serr.Artifacts.Stderr)
	default:
		out.Error("%v", err)
	}
	return exitFailure
}
