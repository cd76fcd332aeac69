package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"repolens/internal/archive"
	"repolens/internal/synth"
)

var reportsFlags struct {
	repo  string
	limit int
}

var reportsCmd = &cobra.Command{
	Use:   "reports [id]",
	Short: "List archived answers or print one",
	Long:  "Without an ID, list the most recent archived answers. With an ID, print that\nanswer. Needs a persistent archive.driver (postgres or s3).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReports,
}

func init() {
	f := reportsCmd.Flags()
	f.StringVar(&reportsFlags.repo, "repo", "", "only reports for owner/name")
	f.IntVar(&reportsFlags.limit, "limit", 20, "maximum reports to list")
}

func runReports(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.Reports == nil {
		return errors.New("report archive is disabled (archive.driver is none)")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		r, err := a.Reports.Get(ctx, args[0])
		if err != nil {
			if errors.Is(err, archive.ErrNotFound) {
				return fmt.Errorf("report %s not found", args[0])
			}
			return err
		}
		fmt.Fprintf(out, "%s  %s  %s\n", r.Repo, r.CreatedAt.Format(time.RFC3339), requestLabel(r))
		fmt.Fprintln(out)
		printAnswer(out, synth.Answer{
			ID:            r.ID,
			Text:          r.Text,
			ProvidersUsed: r.ProvidersUsed,
			Missing:       r.Missing,
			Backend:       r.Backend,
			Model:         r.Model,
		})
		return nil
	}

	reports, err := a.Reports.List(ctx, archive.ListOptions{Repo: reportsFlags.repo, Limit: reportsFlags.limit})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREPO\tCREATED\tREQUEST")
	for _, r := range reports {
		req := requestLabel(r)
		if len(req) > 60 {
			req = req[:57] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Repo, r.CreatedAt.Format(time.RFC3339), req)
	}
	return tw.Flush()
}

func requestLabel(r archive.Report) string {
	if r.Question != "" {
		return r.Question
	}
	return "[" + r.AnalysisType + "]"
}
