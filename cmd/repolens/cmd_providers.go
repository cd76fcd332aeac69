package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List evidence providers and language model backends",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tLABEL\tCOST\tKEYWORDS")
	for _, d := range a.Pipeline.Providers() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Label, d.Cost, strings.Join(d.Keywords, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nBackends: %s (default %s)\n", strings.Join(a.Pipeline.Backends(), ", "), a.Config.LLM.DefaultBackend())
	return nil
}
