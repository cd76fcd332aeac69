package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"repolens/internal/llm"
	"repolens/internal/pipeline"
	"repolens/internal/synth"
)

var askFlags struct {
	analysisType string
	mode         string
	backend      string
	model        string
	maxFiles     int
	maxDepth     int
	json         bool
	quiet        bool
}

var askCmd = &cobra.Command{
	Use:   "ask <repo> [question]",
	Short: "Answer a question about a repository",
	Long: `Answer a free-form question or run an analysis type against a GitHub
repository. The repository is owner/name or a github.com URL.

Examples:
  repolens ask golang/go "How are dependencies managed?"
  repolens ask https://github.com/acme/widgets --type security --mode smart`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAsk,
}

func init() {
	f := askCmd.Flags()
	f.StringVarP(&askFlags.analysisType, "type", "t", "", "analysis type (comprehensive, quick, security, code_quality, dependency, architecture, activity, documentation)")
	f.StringVarP(&askFlags.mode, "mode", "m", "", "fast, standard or smart (default gather.mode)")
	f.StringVar(&askFlags.backend, "backend", "", "language model backend (default llm.default)")
	f.StringVar(&askFlags.model, "model", "", "model override")
	f.IntVar(&askFlags.maxFiles, "max-files", 0, "override the mode's file limit")
	f.IntVar(&askFlags.maxDepth, "max-depth", 0, "override the mode's directory depth")
	f.BoolVar(&askFlags.json, "json", false, "print the answer as JSON")
	f.BoolVarP(&askFlags.quiet, "quiet", "q", false, "do not print progress")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ref, err := pipeline.ParseRepo(args[0])
	if err != nil {
		return err
	}
	var question string
	if len(args) > 1 {
		question = args[1]
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Logger.Sync()

	mode := askFlags.mode
	if mode == "" {
		mode = a.Config.Gather.Mode
	}
	m, err := pipeline.ParseMode(mode)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if !askFlags.quiet {
		p := newProgress(cmd.ErrOrStderr())
		ctx = pipeline.WithObserver(ctx, p.observe)
		ctx = llm.WithHook(ctx, p.hook())
	}

	ans, err := a.Pipeline.Answer(ctx, pipeline.Request{
		Repo:         ref,
		Question:     question,
		AnalysisType: askFlags.analysisType,
		MaxFiles:     askFlags.maxFiles,
		MaxDepth:     askFlags.maxDepth,
		Mode:         m,
		Backend:      askFlags.backend,
		Model:        askFlags.model,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.Kind(err), err)
	}

	out := cmd.OutOrStdout()
	if askFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}
	printAnswer(out, ans)
	return nil
}

func printAnswer(w io.Writer, ans synth.Answer) {
	fmt.Fprintln(w, strings.TrimSpace(ans.Text))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sources: %s\n", strings.Join(ans.ProvidersUsed, ", "))
	if len(ans.Missing) > 0 {
		fmt.Fprintf(w, "Missing: %s\n", strings.Join(ans.Missing, ", "))
	}
	model := ans.Backend
	if ans.Model != "" {
		model += "/" + ans.Model
	}
	fmt.Fprintf(w, "Model:   %s\n", model)
	if ans.ID != "" {
		fmt.Fprintf(w, "Report:  %s\n", ans.ID)
	}
}
