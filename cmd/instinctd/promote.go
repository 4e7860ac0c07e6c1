package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/instinctd/internal/pattern"
	"github.com/fyrsmithlabs/instinctd/internal/promotion"
)

var promoteKind string

func init() {
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(autoPromoteCmd)
	rootCmd.AddCommand(ledgerCmd)

	promoteCmd.Flags().StringVar(&promoteKind, "kind", "skill", "Artifact kind: skill, command, or agent")
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List patterns clearing promotion thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		cands, err := a.promoter.Candidates(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(cands)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tID\tCATEGORY\tOCC\tCONF")
		printBucket(w, promotion.KindSkill, cands.Skill)
		printBucket(w, promotion.KindCommand, cands.Command)
		printBucket(w, promotion.KindAgent, cands.Agent)
		return w.Flush()
	},
}

func printBucket(w *tabwriter.Writer, kind promotion.Kind, records []pattern.Record) {
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\n", kind, rec.ID, rec.Category, rec.Occurrences, rec.Confidence)
	}
}

var promoteCmd = &cobra.Command{
	Use:   "promote <pattern-id>",
	Short: "Promote one pattern into an artifact",
	Long: `Promote one pattern into a generated artifact of the given kind.

Examples:
  instinctd promote 4f1c... --kind skill
  instinctd promote 4f1c... --kind command`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		artifact, err := a.promoter.Promote(ctx, args[0], promotion.Kind(promoteKind))
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(artifact)
		}
		fmt.Printf("promoted %s as %s: %s\n", artifact.PatternID, artifact.Kind, artifact.Path)
		return nil
	},
}

var autoPromoteCmd = &cobra.Command{
	Use:   "auto-promote",
	Short: "Promote every pattern clearing the combined rule",
	Long: `Promote every pattern with confidence >= 0.8 and occurrences >= 5,
routing each to the artifact kind its category implies. Patterns that fall
short are reported with the rule they failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		result, err := a.promoter.AutoPromote(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(result)
		}

		for _, artifact := range result.Promoted {
			fmt.Printf("promoted %s as %s: %s\n", artifact.PatternID, artifact.Kind, artifact.Path)
		}
		for _, skip := range result.Skipped {
			fmt.Printf("skipped %s (%s): %s\n", skip.PatternID, skip.Category, skip.Reason)
		}
		fmt.Printf("%d promoted, %d skipped\n", len(result.Promoted), len(result.Skipped))
		return nil
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the promotion ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		entries, err := a.promoter.Ledger(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(entries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROMOTED\tPATTERN\tKIND\tARTIFACT")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				entry.PromotedAt.Format("2006-01-02 15:04"),
				entry.PatternID, entry.Kind, entry.ArtifactPath)
		}
		return w.Flush()
	},
}
