package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-mailflow-dashboard/internal/dashboard"
	"go-mailflow-dashboard/internal/output"
	"go-mailflow-dashboard/internal/smtplog"
)

type inspectFlags struct {
	limit  int
	format string
	detail bool
	query  string
}

func newInspectCommand(o *options) *cobra.Command {
	f := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect journeys|smtp|queue",
		Short: "Run one refresh and print a view",
		Long: `Run a single refresh cycle against the configured snapshots and print one
view to stdout.

Examples:
  mailflow inspect journeys --limit 20 --detail
  mailflow inspect smtp -q contoso.com
  mailflow inspect queue --output json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"journeys", "smtp", "queue"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, o, f, args[0])
		},
	}
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 50, "maximum rows to print (0 for all)")
	cmd.Flags().StringVarP(&f.format, "output", "o", "text", "output format: text, json")
	cmd.Flags().BoolVarP(&f.detail, "detail", "d", false, "include the expanded timeline of each row")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "only rows containing this text")
	return cmd
}

func runInspect(cmd *cobra.Command, o *options, f *inspectFlags, what string) error {
	var views []dashboard.ViewID
	switch what {
	case "journeys":
		views = []dashboard.ViewID{dashboard.ViewMessageTracking}
	case "smtp":
		views = []dashboard.ViewID{dashboard.ViewSMTP}
	case "queue":
		views = []dashboard.ViewID{dashboard.ViewQueueMessages}
	default:
		return fmt.Errorf("unknown view %q (valid: journeys, smtp, queue)", what)
	}

	cfg, err := o.load()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.close()

	res := rt.refresher.CycleViews(cmd.Context(), dashboard.Inspection{}, views)
	if out := res.Outcomes[views[0]]; out.Err != nil {
		return fmt.Errorf("refresh %s: %w", views[0], out.Err)
	}

	data := rt.state.Data()
	r := output.New(cmd.OutOrStdout(), f.format, cfg.Location())
	switch views[0] {
	case dashboard.ViewMessageTracking:
		journeys := data.Journeys[:0:0]
		for _, j := range data.Journeys {
			if j.Matches(f.query) {
				journeys = append(journeys, j)
			}
		}
		return r.Journeys(truncate(journeys, f.limit), f.detail)
	case dashboard.ViewSMTP:
		rows := make([]smtplog.Row, 0, len(data.SMTPRows))
		for _, row := range data.SMTPRows {
			if row.Matches(f.query) {
				rows = append(rows, row)
			}
		}
		smtplog.SortByOrder(rows, true)
		return r.Sessions(truncate(rows, f.limit), f.detail)
	default:
		st := rt.state.ViewStatus(dashboard.ViewQueueMessages)
		if data.QueueMessages == nil {
			fmt.Fprintln(os.Stderr, "no queue data loaded")
		}
		return r.Queue(data.QueueSummary, st.RefreshedAt)
	}
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
