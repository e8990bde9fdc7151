package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/nkapoor/ferret/internal/advisor"
	"github.com/nkapoor/ferret/internal/agent"
	"github.com/nkapoor/ferret/internal/governance"
	"github.com/nkapoor/ferret/internal/observability"
	"github.com/nkapoor/ferret/internal/render"
	"github.com/nkapoor/ferret/internal/store"
	"github.com/nkapoor/ferret/internal/tools"
	"github.com/nkapoor/ferret/internal/verify"
	"github.com/nkapoor/ferret/pkg/config"
)

var (
	flagConfig        string
	flagFormat        string
	flagTheme         string
	flagMaxIterations int
)

var rootCmd = &cobra.Command{
	Use:           "ferret",
	Short:         "Autonomous research agent",
	Long:          "ferret researches a goal on the open web, collects sources, and writes a verified report.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Research a goal and produce a report",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a past run's state and report",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func main() {
	runCmd.Flags().StringVar(&flagFormat, "format", "", "output format: pdf, slides, web, or all")
	runCmd.Flags().StringVar(&flagTheme, "theme", "", "render theme: default, dark, or minimal")
	runCmd.Flags().IntVar(&flagMaxIterations, "max-iterations", 0, "iteration budget for the loop")

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.AddCommand(runCmd, listCmd, showCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves --config, falls back to ./config.yaml, then to the
// built-in defaults.
func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadConfig(flagConfig)
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return config.LoadConfig("config.yaml")
	}
	return config.Default(), nil
}

// buildModel constructs the language model from the first enabled
// provider.
func buildModel(cfg *config.Config) (llms.Model, error) {
	name, p := cfg.GetDefaultProvider()
	if name == "" {
		return nil, fmt.Errorf("no enabled provider found in config")
	}

	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %q not supported", name)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagFormat != "" {
		cfg.Output.Format = flagFormat
	}
	if flagTheme != "" {
		cfg.Output.Theme = flagTheme
	}
	if flagMaxIterations > 0 {
		cfg.Loop.MaxIterations = flagMaxIterations
	}

	sink := observability.NewConsoleSink()
	sink.Banner(cfg.App.Name, goal)

	model, err := buildModel(cfg)
	if err != nil {
		return err
	}

	fileStore, err := store.NewFileStore(cfg.App.RunsDir)
	if err != nil {
		return err
	}

	index, err := store.NewIndex(cfg.App.IndexPath)
	if err != nil {
		// The index is an acceleration structure; a run can proceed
		// without it.
		sink.Printf("[ferret] run index unavailable: %v", err)
		index = nil
	} else {
		defer index.Close()
	}

	browser := tools.NewBrowser()
	registry := tools.NewRegistry()
	registry.Register(tools.NewSearchTool())
	registry.Register(&tools.OpenTool{Browser: browser})
	registry.Register(&tools.ExtractTool{Browser: browser})
	registry.Register(tools.NewFileWriteTool(cfg.App.Workspace))
	registry.Register(tools.NewCodeTool(cfg.App.Workspace))

	loop := agent.New(agent.Deps{
		Store:    fileStore,
		Index:    index,
		Advisor:  advisor.NewLLMAdvisor(model, registry.Describe(), cfg.Verify.MinSources),
		Registry: registry,
		Verifier: verify.NewEngine(cfg.Verify.MinSources, cfg.Verify.MinWordCount),
		Renderers: []render.Renderer{
			render.WebRenderer{},
			render.SlidesRenderer{},
			render.NewPDFRenderer(),
		},
		Policy: governance.NewDefaultPolicyEngine(),
		Sink:   sink,
		Logger: observability.NewLogger(),
	}, agent.Options{
		MaxIterations:         cfg.Loop.MaxIterations,
		EarlyExitSources:      cfg.Loop.EarlyExitSources,
		EarlyExitMinIteration: cfg.Loop.EarlyExitMinIteration,
		Format:                cfg.Output.Format,
		Theme:                 cfg.Output.Theme,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := loop.Run(ctx, goal)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Run:", outcome.RunID)
	if outcome.Error != "" {
		fmt.Println("Error:", outcome.Error)
	}
	fmt.Println("Report:", outcome.ReportPath)
	for format, out := range outcome.Outputs {
		if out.Success {
			fmt.Printf("Output (%s): %s\n", format, out.Path)
		} else {
			fmt.Printf("Output (%s): failed: %s\n", format, out.Error)
		}
	}

	if len(outcome.Verification.Results) > 0 {
		fmt.Println()
		fmt.Println("Verification:")
		for _, r := range outcome.Verification.Results {
			mark := "PASS"
			if !r.Passed {
				mark = "FAIL"
			}
			fmt.Printf("  [%s] %s: %s\n", mark, r.Rule, r.Message)
		}
	}

	if !outcome.Success {
		return fmt.Errorf("run %s finished with failures", outcome.RunID)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	index, err := store.NewIndex(cfg.App.IndexPath)
	if err != nil {
		return err
	}
	defer index.Close()

	records, err := index.Recent(20)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tGOAL")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.RunID, rec.Status, truncate(rec.Goal, 60))
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fileStore, err := store.NewFileStore(cfg.App.RunsDir)
	if err != nil {
		return err
	}

	run, err := fileStore.LoadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Println("Goal:", run.Goal)
	fmt.Println("Status:", run.Status)
	fmt.Printf("Sources: %d, keywords tried: %d, failed attempts: %d\n",
		len(run.Sources()), len(run.Memory.KeywordsTried), len(run.Memory.FailedAttempts))

	if len(run.Steps) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tSTATUS\tTOOL\tTITLE")
		for _, step := range run.Steps {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", step.ID, step.Status, step.Tool, truncate(step.Title, 50))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if report := fileStore.ReportText(); report != "" {
		fmt.Println()
		fmt.Println("--- report ---")
		fmt.Println(truncate(report, 500))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
