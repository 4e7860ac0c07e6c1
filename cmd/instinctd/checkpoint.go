package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var cpName string

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointSaveCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	checkpointCmd.AddCommand(checkpointDiffCmd)
	checkpointCmd.AddCommand(checkpointExportCmd)
	checkpointCmd.AddCommand(checkpointImportCmd)

	checkpointSaveCmd.Flags().StringVar(&cpName, "name", "", "Checkpoint name (default: timestamped)")
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage learning-state checkpoints",
	Long: `Manage checkpoints of the learning state: the recent event window, the
full pattern store, and root identity.

Examples:
  instinctd checkpoint save --name "before experiment"
  instinctd checkpoint list
  instinctd checkpoint restore <id>
  instinctd checkpoint diff <id>
  instinctd checkpoint export <id> backup.json
  instinctd checkpoint import backup.json`,
}

var checkpointSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a new checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		cp, err := a.checkpoints.Save(ctx, cpName)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(map[string]any{
				"id":         cp.ID,
				"name":       cp.Name,
				"created_at": cp.CreatedAt,
				"stats":      cp.Stats,
			})
		}
		fmt.Printf("saved checkpoint %s (%s): %d event(s), %d pattern(s)\n",
			cp.ID, cp.Name, cp.Stats.EventTotal, cp.Stats.PatternTotal)
		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		summaries, err := a.checkpoints.List(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(summaries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCREATED\tEVENTS\tPATTERNS")
		for _, s := range summaries {
			name := s.Name
			if s.Imported {
				name += " (imported)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
				s.ID, name, s.CreatedAt.Format("2006-01-02 15:04"), s.EventCount, s.PatternCount)
		}
		return w.Flush()
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a checkpoint",
	Long: `Restore a checkpoint. A safety snapshot of the current state is taken
first; the checkpoint's events are appended to the live log and its pattern
categories overwrite the live ones.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		result, err := a.checkpoints.Restore(ctx, args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(result)
		}
		fmt.Printf("restored %s: %d event(s) appended, %d categor(ies) overwritten (safety snapshot %s)\n",
			result.CheckpointID, result.RestoredEvents, len(result.RestoredCategories), result.SafetyCheckpointID)
		return nil
	},
}

var checkpointDiffCmd = &cobra.Command{
	Use:   "diff <id>",
	Short: "Compare a checkpoint against live state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		diff, err := a.checkpoints.Diff(ctx, args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(diff)
		}

		fmt.Printf("events: %d at checkpoint, %d live (%+d)\n",
			diff.CheckpointEvent, diff.LiveEvent, diff.EventDelta)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tSTATUS\tCHECKPOINT\tLIVE")
		for _, cd := range diff.Categories {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", cd.Category, cd.Status, cd.CheckpointCount, cd.LiveCount)
		}
		return w.Flush()
	},
}

var checkpointExportCmd = &cobra.Command{
	Use:   "export <id> <path>",
	Short: "Export a checkpoint to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		if err := a.checkpoints.Export(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("exported %s to %s\n", args[0], args[1])
		return nil
	},
}

var checkpointImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import a checkpoint from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		cp, err := a.checkpoints.Import(ctx, args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			return printJSON(map[string]any{
				"id":            cp.ID,
				"name":          cp.Name,
				"imported_from": cp.ImportedFrom,
			})
		}
		fmt.Printf("imported checkpoint %s (%s)\n", cp.ID, cp.Name)
		return nil
	},
}
