package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonomatch/pkg/grammar"
)

func newLintCmd(opts *rootOptions) *cobra.Command {
	var (
		similarity float64
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Report phrases the matcher could confuse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cfg, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())

			type finding struct {
				Intent  string              `json:"intent"`
				Warning grammar.LintWarning `json:"warning"`
			}
			var findings []finding
			for _, in := range a.Live().Load().Intents() {
				budget := cfg.Matching.Budget
				if in.Budget > 0 {
					budget = in.Budget
				}
				lopts := []grammar.LintOption{grammar.WithLintBudget(budget)}
				if similarity > 0 {
					lopts = append(lopts, grammar.WithLintSimilarity(similarity))
				}
				for _, w := range in.Grammar.Lint(lopts...) {
					findings = append(findings, finding{in.Name, w})
				}
			}

			w := cmd.OutOrStdout()
			if opts.format == "json" {
				if err := printJSON(w, findings); err != nil {
					return err
				}
			} else {
				for _, f := range findings {
					fmt.Fprintf(w, "%s: %s\n", f.Intent, f.Warning)
				}
				fmt.Fprintf(w, "%d warning(s)\n", len(findings))
			}
			if strict && len(findings) > 0 {
				return fmt.Errorf("%d confusable phrase pair(s)", len(findings))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&similarity, "similarity", 0, "Jaro-Winkler similarity from which phrases are reported (default 0.92)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when warnings are found")
	return cmd
}
