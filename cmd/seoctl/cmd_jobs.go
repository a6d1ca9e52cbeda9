package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// statusConcurrency bounds the parallel status lookups.
const statusConcurrency = 4

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status JOB_ID...",
		Short: "Show the server side status of one or more jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}

			results := make([]*analysis.StatusResponse, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(statusConcurrency)
			for i, id := range args {
				i, id := i, id
				g.Go(func() error {
					st, err := api.GetStatus(ctx, id)
					if err != nil {
						return fmt.Errorf("job %s: %w", id, userError(err))
					}
					results[i] = st
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for _, st := range results {
				if asJSON {
					enc := json.NewEncoder(a.out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(st); err != nil {
						return err
					}
					continue
				}
				printStatus(a, st)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")
	return cmd
}

func printStatus(a *app, st *analysis.StatusResponse) {
	line := fmt.Sprintf("%s  %s", st.JobID, st.Status)
	if p := st.Progress; p != nil {
		line += fmt.Sprintf("  step %d/%d %.0f%% %s", p.CurrentStep, p.TotalSteps, p.Percentage, p.Message)
	}
	if st.Error != "" {
		line += "  " + st.Error
	}
	fmt.Fprintln(a.out, line)
}

type controlFunc func(*analysis.Client, context.Context, string) (*analysis.ControlResponse, error)

func newControlCmd(a *app, name, short string, call controlFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name + " JOB_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}
			resp, err := call(api, cmd.Context(), args[0])
			if err != nil {
				return userError(err)
			}
			msg := resp.Message
			if msg == "" {
				msg = resp.Status
			}
			fmt.Fprintf(a.out, "%s: %s\n", args[0], msg)
			return nil
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}
			h, err := api.Health(cmd.Context())
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(a.out, "%s is %s\n", a.settings.APIBaseURL, h.Status)
			return nil
		},
	}
}
