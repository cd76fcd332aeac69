package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"repolens/internal/pipeline"
)

var explainFlags struct {
	analysisType string
}

var explainCmd = &cobra.Command{
	Use:   "explain [question]",
	Short: "Show which providers a question would use",
	Long:  "Classify a question or analysis type and list the evidence providers it\nwould query. Nothing is fetched and no model is called.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExplain,
}

func init() {
	explainCmd.Flags().StringVarP(&explainFlags.analysisType, "type", "t", "", "analysis type")
}

func runExplain(cmd *cobra.Command, args []string) error {
	var question string
	if len(args) > 0 {
		question = args[0]
	}
	if question == "" && explainFlags.analysisType == "" {
		return fmt.Errorf("%s: give a question or --type", pipeline.CodeInvalidRequest)
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	pl, err := a.Pipeline.Plan(pipeline.Request{Question: question, AnalysisType: explainFlags.analysisType})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Source:  %s\n", pl.Selection.Source)
	if pl.Selection.Rule != "" {
		fmt.Fprintf(out, "Rule:    %s\n", pl.Selection.Rule)
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tLABEL\tCOST")
	for _, d := range pl.Descriptors {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Label, d.Cost)
	}
	return tw.Flush()
}
