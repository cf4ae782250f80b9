package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/zettel-lab/kasten/pkg/cli/config"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/service/health"
)

func cmdHealth() *cli.Command {
	var repoCfg config.Repository
	var tuningCfg config.Tuning

	flags := append(repoCfg.Flags(), tuningCfg.Flags()...)

	return &cli.Command{
		Name:  "health",
		Usage: "Run a one-shot knowledge-graph health scan and print the report",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := tuningCfg.Load(); err != nil {
				return goerr.Wrap(err, "failed to load tuning file")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer repo.Close() //nolint:errcheck // process exits right after

			opts := []health.Option{
				health.WithSplitThreshold(tuningCfg.Health.SplitThreshold),
			}
			if tuningCfg.Health.SimilarityThreshold > 0 {
				opts = append(opts, health.WithSimilarityThreshold(tuningCfg.Health.SimilarityThreshold))
			}
			if tuningCfg.Health.DuplicateThreshold > 0 {
				opts = append(opts, health.WithDuplicateThreshold(tuningCfg.Health.DuplicateThreshold))
			}

			report, err := health.New(repo, opts...).Run(ctx)
			if err != nil {
				return goerr.Wrap(err, "health run failed")
			}

			printHealthReport(report)
			return nil
		},
	}
}

func printHealthReport(report *model.HealthReport) {
	title := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed)

	w := os.Stdout

	title.Fprintln(w, "Knowledge Graph Health Report")
	fmt.Fprintf(w, "Generated: %s (%s)\n\n",
		report.GeneratedAt.Format("2006-01-02 15:04:05"), report.Duration)

	fmt.Fprintf(w, "Total notes:     %d\n", report.TotalNotes)
	fmt.Fprintf(w, "Main graph size: %d\n", report.MainGraphSize)

	if report.OrphanCount == 0 {
		good.Fprintln(w, "Orphans:         none")
	} else {
		warn.Fprintf(w, "Orphans:         %d\n", report.OrphanCount)
		for _, id := range report.Orphans {
			fmt.Fprintf(w, "  - %s\n", id)
		}
	}

	if len(report.Islands) == 0 {
		good.Fprintln(w, "Islands:         none")
	} else {
		warn.Fprintf(w, "Islands:         %d\n", len(report.Islands))
		for _, island := range report.Islands {
			fmt.Fprintf(w, "  - size %d: %v\n", island.Size, island.NoteIDs)
		}
	}

	if len(report.DanglingLinks) == 0 {
		good.Fprintln(w, "Dangling links:  none")
	} else {
		warn.Fprintf(w, "Dangling links:  %d\n", len(report.DanglingLinks))
		for _, link := range report.DanglingLinks {
			fmt.Fprintf(w, "  - %s -> [[%s]]\n", link.NoteID, link.TargetTitle)
		}
	}

	if len(report.DuplicateCandidates) == 0 {
		good.Fprintln(w, "Duplicates:      none")
	} else {
		bad.Fprintf(w, "Duplicates:      %d\n", len(report.DuplicateCandidates))
		for _, dup := range report.DuplicateCandidates {
			fmt.Fprintf(w, "  - %s <-> %s (similarity %.3f)\n", dup.A, dup.B, dup.Similarity)
		}
	}

	if len(report.SplitCandidates) == 0 {
		good.Fprintln(w, "Split candidates: none")
	} else {
		warn.Fprintf(w, "Split candidates: %d\n", len(report.SplitCandidates))
		for _, id := range report.SplitCandidates {
			fmt.Fprintf(w, "  - %s\n", id)
		}
	}
}
