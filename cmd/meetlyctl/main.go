package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"meetly/backend/internal/calendar"
	"meetly/backend/internal/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "meetlyctl",
		Short:         "Offline tools for meetly host schedules",
		Long:          "meetlyctl computes bookable slots from a TOML host schedule without a running server.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newSlotsCmd(), newValidateCmd())
	return root
}

type slotsOptions struct {
	file     string
	date     string
	days     int
	duration int
	format   string
	now      string
	policy   string
	busy     []string
}

func newSlotsCmd() *cobra.Command {
	var opts slotsOptions
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the bookable slots of a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlots(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "schedule file (TOML)")
	cmd.Flags().StringVar(&opts.date, "date", "", "first date to scan, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&opts.days, "days", 7, "number of dates to scan")
	cmd.Flags().IntVar(&opts.duration, "duration", 0, "slot length in minutes (overrides the file)")
	cmd.Flags().StringVar(&opts.format, "format", "json", "output format: json or ics")
	cmd.Flags().StringVar(&opts.now, "now", "", "evaluate as of this RFC 3339 instant (default current time)")
	cmd.Flags().StringVar(&opts.policy, "policy", "align", "minimum-notice policy: align or snap")
	cmd.Flags().StringArrayVar(&opts.busy, "busy", nil, "iCalendar file whose events count as bookings (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSlots(out io.Writer, opts slotsOptions) error {
	if opts.days <= 0 || opts.days > domain.MaxScanDays {
		return fmt.Errorf("--days must be within 1..%d", domain.MaxScanDays)
	}
	s, err := loadScheduleFile(opts.file)
	if err != nil {
		return err
	}
	policy, err := domain.ParseNoticePolicy(opts.policy)
	if err != nil {
		return err
	}

	now := time.Now()
	if opts.now != "" {
		if now, err = time.Parse(time.RFC3339, opts.now); err != nil {
			return fmt.Errorf("--now: %w", err)
		}
	}
	engine := domain.NewSlotEngine(
		domain.WithLocation(s.loc),
		domain.WithNoticePolicy(policy),
		domain.WithClock(domain.ClockFunc(func() time.Time { return now })),
	)

	start := engine.Today()
	if opts.date != "" {
		if start, err = time.ParseInLocation(domain.DateLayout, opts.date, s.loc); err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
	}

	duration := s.duration
	if opts.duration > 0 {
		duration = opts.duration
	}

	bookings := s.bookings
	windowEnd := start.AddDate(0, 0, opts.days+1)
	for _, path := range opts.busy {
		busy, err := readBusyFile(path, start, windowEnd)
		if err != nil {
			return err
		}
		bookings = append(bookings, busy...)
	}

	days, err := engine.ComputeAvailability(s.windows, bookings, domain.SlotRequest{
		DurationMinutes:  duration,
		MinNoticeMinutes: s.timeGap,
		StartDate:        start,
		Days:             opts.days,
	})
	if err != nil {
		return err
	}

	switch strings.ToLower(opts.format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(days)
	case "ics":
		ev := domain.Event{
			ID:              uuid.NewSHA1(uuid.NameSpaceURL, []byte("meetlyctl:"+opts.file)),
			Title:           s.title,
			DurationMinutes: duration,
		}
		cal, err := calendar.Slots(ev, days, s.loc, now)
		if errors.Is(err, calendar.ErrEmptyCalendar) {
			return errors.New("no free slots in the requested range")
		}
		if err != nil {
			return err
		}
		return calendar.Encode(out, cal)
	default:
		return fmt.Errorf("unknown --format %q (want json or ics)", opts.format)
	}
}

func readBusyFile(path string, windowStart, windowEnd time.Time) ([]domain.BookedInterval, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening busy calendar: %w", err)
	}
	defer f.Close()

	busy, err := calendar.ReadBusy(f, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return busy, nil
}

func newValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a schedule file",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadScheduleFile(file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d windows, %d bookings, timezone %s, time gap %d min\n",
				len(s.windows), len(s.bookings), s.loc, s.timeGap)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "schedule file (TOML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
