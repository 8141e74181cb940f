package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/v0xg/pixellens/internal/config"
	"github.com/v0xg/pixellens/internal/history"
	"github.com/v0xg/pixellens/internal/signature"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a test suite without launching a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			suite, _, err := loadSuite()
			if err != nil {
				return err
			}
			steps := 0
			for _, c := range suite.Cases {
				steps += len(c.Steps)
			}
			fmt.Printf("✓ %s: %d test cases, %d steps\n", configPath, len(suite.Cases), steps)
			for _, c := range suite.Cases {
				fmt.Printf("  %s (%s, %d steps)\n", c.Name, c.StartURL, len(c.Steps))
			}
			return nil
		},
	}
}

func signaturesCmd() *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "signatures",
		Short: "List the pixel labels that can be expected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var suiteSigs string
			if configPath != "" {
				suite, err := config.Load(configPath)
				if err != nil {
					return err
				}
				suiteSigs = suite.Signatures
			}
			catalog, err := signature.Load(suiteSigs, signaturesPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tPLATFORM\tKEY PARAMS")
			for _, s := range catalog.Signatures() {
				if platform != "" && !strings.EqualFold(s.Platform, platform) {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Label, s.Platform, strings.Join(s.KeyParams, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Only show this platform")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	var caseName string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := history.Open(history.Options{Path: historyPath, Logger: newLogger()})
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			if caseName != "" {
				return printCaseHistory(ctx, w, store, caseName, limit)
			}

			runs, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "STARTED\tRUN\tRESULT\tPASSED\tDURATION\tCONFIG")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04"), r.ID[:min(8, len(r.ID))], verdict(r.Success),
					r.Passed, r.Total, (time.Duration(r.DurationMS) * time.Millisecond).Round(100*time.Millisecond), r.ConfigPath)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of entries to show")
	cmd.Flags().StringVar(&caseName, "case", "", "Show the history of one test case")
	return cmd
}

func printCaseHistory(ctx context.Context, w *tabwriter.Writer, store *history.Store, name string, limit int) error {
	recs, err := store.CaseHistory(ctx, name, limit)
	if err != nil {
		return err
	}
	passed, total, err := store.PassRate(ctx, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: passed %d of %d recorded runs\n\n", name, passed, total)
	fmt.Fprintln(w, "RUN\tRESULT\tMISSING PIXELS\tERROR")
	for _, c := range recs {
		var missing []string
		for _, st := range c.Steps {
			for _, label := range st.Failed {
				missing = append(missing, st.Name+": "+label)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.RunID[:min(8, len(c.RunID))], verdict(c.Success), strings.Join(missing, "; "), c.Error)
	}
	return w.Flush()
}

func verdict(ok bool) string {
	if ok {
		return "PASSED"
	}
	return "FAILED"
}
