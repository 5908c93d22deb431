package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"pdfqa/internal/config"
	"pdfqa/internal/console"
	"pdfqa/internal/logging"
	"pdfqa/internal/service"
	"pdfqa/internal/tui"
)

// app holds the persistent flags shared by every command.
type app struct {
	cfgPath string
	rebuild bool
	useTUI  bool
	verbose bool

	cfg    *config.AppConfig
	logger *zap.Logger
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pdfqa",
		Short: "Ask questions about a directory of PDF files",
		Long: `pdfqa indexes the PDF files of a directory into a persisted vector index
and answers questions with a language model grounded on the most relevant,
mutually diverse passages.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runInteractive,
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "",
		"path to YAML config (default ./config.yaml, then ~/.config/pdfqa/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.Flags().BoolVar(&a.rebuild, "rebuild", false, "delete and rebuild the index before starting")
	root.Flags().BoolVar(&a.useTUI, "tui", false, "use the full-screen interface when stdin is a terminal")

	root.AddCommand(a.newIndexCmd(), a.newProbeCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	var err error
	if a.cfgPath == "" {
		a.cfg, _, err = config.LoadDefault()
	} else {
		a.cfg, err = config.Load(a.cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.logger, err = logging.New(a.cfg.Log.Level, a.verbose)
	return err
}

func (a *app) runInteractive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	defer a.logger.Sync() //nolint:errcheck

	fmt.Fprintln(out, "Initializing RAG system...")
	p, err := buildPipeline(a.cfg, a.logger, true)
	if err != nil {
		return err
	}
	defer p.Close()

	var info string
	if err := p.Open(ctx, a.rebuild); err != nil {
		// keep serving so every question reports the failure
		fmt.Fprintln(out, "Failed to initialize vector store!")
		info = "Retrieval disabled: " + err.Error()
	} else {
		info = describe(ctx, p)
	}

	if a.useTUI && isTerminal(cmd.InOrStdin()) {
		_, err := tea.NewProgram(tui.New(ctx, p, info, a.logger), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	}
	if a.useTUI {
		a.logger.Warn("stdin is not a terminal, using line mode")
	}
	return console.Run(ctx, cmd.InOrStdin(), out, p, a.logger)
}

func describe(ctx context.Context, p *service.Pipeline) string {
	if !p.Ready() {
		return "Index not loaded"
	}
	n, err := p.Count(ctx)
	if err != nil {
		return "Index loaded"
	}
	return fmt.Sprintf("%d chunks indexed", n)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
