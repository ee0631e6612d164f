package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calbridge/internal/aggregate"
	"github.com/teemow/calbridge/internal/event"
)

const defaultListWindow = 7 * 24 * time.Hour

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read and write events across all connected calendars",
	}

	cmd.AddCommand(newEventsListCmd())
	cmd.AddCommand(newEventsCreateCmd())
	cmd.AddCommand(newEventsUpdateCmd())
	cmd.AddCommand(newEventsDeleteCmd())
	return cmd
}

// withUserApp builds the app, loads the user's credentials and runs fn.
func withUserApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if _, err := a.loadCredentials(); err != nil {
		return err
	}
	return fn(ctx, a)
}

func newEventsListCmd() *cobra.Command {
	var from, to string
	var report bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events of every connected calendar within a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := listRange(from, to, time.Now())
			if err != nil {
				return err
			}

			return withUserApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.engine.FetchAllEventsReport(ctx, a.user, start, end)
				if err != nil {
					return err
				}
				if report {
					out := summarize(r)
					out.Events = aggregate.Events(r)
					return writeJSON(cmd.OutOrStdout(), out)
				}
				return writeJSON(cmd.OutOrStdout(), aggregate.Events(r))
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Range start (RFC 3339 or YYYY-MM-DD, default: now)")
	cmd.Flags().StringVar(&to, "to", "", "Range end (RFC 3339 or YYYY-MM-DD, default: start plus 7 days)")
	cmd.Flags().BoolVar(&report, "report", false, "Print per-backend outcomes along with the events")
	return cmd
}

// listRange resolves --from and --to against now.
func listRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	start := now
	if from != "" {
		t, err := parseTime(from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		start = t
	}

	end := start.Add(defaultListWindow)
	if to != "" {
		t, err := parseTime(to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		end = t
	}
	return start, end, nil
}

// eventFlags are the fields shared by create and update.
type eventFlags struct {
	title       string
	description string
	location    string
	start       string
	end         string
	status      string
	allDay      bool
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Event title")
	cmd.Flags().StringVar(&f.description, "description", "", "Event description")
	cmd.Flags().StringVar(&f.location, "location", "", "Event location")
	cmd.Flags().StringVar(&f.start, "start", "", "Start time (RFC 3339, or YYYY-MM-DD with --all-day)")
	cmd.Flags().StringVar(&f.end, "end", "", "End time; for all-day events the first day after the event")
	cmd.Flags().StringVar(&f.status, "status", "", "Status: confirmed, tentative, cancelled, free, busy, out_of_office, working_elsewhere")
	cmd.Flags().BoolVar(&f.allDay, "all-day", false, "Create an all-day event")
	_ = cmd.MarkFlagRequired("start")
}

// event builds the canonical event from the flags.
func (f *eventFlags) event() (event.Event, error) {
	start, err := parseTime(f.start)
	if err != nil {
		return event.Event{}, fmt.Errorf("--start: %w", err)
	}
	var end time.Time
	if f.end != "" {
		if end, err = parseTime(f.end); err != nil {
			return event.Event{}, fmt.Errorf("--end: %w", err)
		}
	}
	status, err := event.ParseStatus(f.status)
	if err != nil {
		return event.Event{}, fmt.Errorf("--status: %w", err)
	}

	var ev event.Event
	if f.allDay {
		ev, err = event.NewAllDay(f.title, start, end)
	} else {
		if end.IsZero() {
			return event.Event{}, fmt.Errorf("--end is required for timed events")
		}
		ev, err = event.New(f.title, start, end)
	}
	if err != nil {
		return event.Event{}, err
	}

	ev.Description = f.description
	ev.Location = f.location
	ev.Status = status
	return ev, nil
}

// writeAccepted prints the accepted events, or the full report when asked.
func writeAccepted(cmd *cobra.Command, r aggregate.Report[event.Event], report bool) error {
	accepted := aggregate.Accepted(r)
	if !report {
		return writeJSON(cmd.OutOrStdout(), accepted)
	}
	out := summarize(r)
	out.Events = accepted
	return writeJSON(cmd.OutOrStdout(), out)
}

func newEventsCreateCmd() *cobra.Command {
	var flags eventFlags
	var report bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event on every connected calendar",
		Long: `Create the event on every connected calendar concurrently. One copy is
printed per backend that accepted it, each with that backend's id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev, err := flags.event()
			if err != nil {
				return err
			}

			return withUserApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.engine.CreateEventReport(ctx, a.user, ev)
				if err != nil {
					return err
				}
				return writeAccepted(cmd, r, report)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&report, "report", false, "Print per-backend outcomes along with the events")
	return cmd
}

func newEventsUpdateCmd() *cobra.Command {
	var flags eventFlags
	var id string
	var report bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace an event on every connected calendar",
		Long: `Send the event with the given id to every connected calendar. Backend ids
are not shared, so normally only the backend that issued the id accepts it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev, err := flags.event()
			if err != nil {
				return err
			}
			ev.ID = id

			return withUserApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.engine.UpdateEventReport(ctx, a.user, ev)
				if err != nil {
					return err
				}
				return writeAccepted(cmd, r, report)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&id, "id", "", "Backend id of the event")
	cmd.Flags().BoolVar(&report, "report", false, "Print per-backend outcomes along with the events")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newEventsDeleteCmd() *cobra.Command {
	var report bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an event from every connected calendar",
		Long: `Delete the event with the given id from every connected calendar. Backends
that do not know the id fail; those failures are logged, not returned.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.engine.DeleteEventReport(ctx, a.user, args[0])
				if err != nil {
					return err
				}
				if report {
					return writeJSON(cmd.OutOrStdout(), summarize(r))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&report, "report", false, "Print per-backend outcomes")
	return cmd
}
