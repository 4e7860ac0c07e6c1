package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/instinctd/internal/event"
	"github.com/fyrsmithlabs/instinctd/internal/pattern"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(patternsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show event log statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		stats, err := a.recorder.Stats(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(stats)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Total events\t%d\n", stats.Total)
		fmt.Fprintf(w, "Live log\t%d\n", stats.CurrentFileCount)
		fmt.Fprintf(w, "Archives\t%d\n", stats.ArchiveCount)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "CATEGORY\tCOUNT")

		categories := make([]string, 0, len(stats.PerCategory))
		for category := range stats.PerCategory {
			categories = append(categories, string(category))
		}
		sort.Strings(categories)
		for _, category := range categories {
			fmt.Fprintf(w, "%s\t%d\n", category, stats.PerCategory[event.Category(category)])
		}
		return w.Flush()
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Mine the event history without persisting",
	Long: `Mine the full event history for recurring patterns and report the
candidates without touching the pattern store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		analysis, err := a.miner.Analyze(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(analysis)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tPATTERN\tOCC\tCONF")
		printCandidates(w, pattern.CategoryWorkflowPatterns, analysis.WorkflowPatterns)
		printCandidates(w, pattern.CategoryErrorFixes, analysis.ErrorFixPatterns)
		printCandidates(w, pattern.CategoryFrameworkSelection, analysis.FrameworkPatterns)
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d candidate(s)\n", analysis.Total())
		return nil
	},
}

func printCandidates(w *tabwriter.Writer, category string, candidates []pattern.Candidate) {
	for _, cand := range candidates {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", category, cand.Pattern.Key(), cand.Occurrences, cand.Confidence)
	}
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Mine the event history and merge into the pattern store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		result, err := a.miner.GenerateAndPersist(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(result)
		}
		fmt.Printf("created %d, updated %d pattern(s) across %d categor(ies)\n",
			result.Created, result.Updated, len(result.Categories))
		return nil
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List stored patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		all, err := a.patterns.LoadAll(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(all)
		}

		categories := make([]string, 0, len(all))
		for category := range all {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCATEGORY\tOCC\tCONF\tUPDATED")
		for _, category := range categories {
			for _, rec := range all[category] {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\n",
					rec.ID, rec.Category, rec.Occurrences, rec.Confidence,
					rec.UpdatedAt.Format("2006-01-02 15:04"))
			}
		}
		return w.Flush()
	},
}
