package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"calsync/internal/domain"
)

func countFailed(fleet *domain.FleetResult) int {
	failed := 0
	for _, r := range fleet.Results {
		if !r.Result.Success {
			failed++
		}
	}
	return failed
}

func printFleet(w io.Writer, fleet *domain.FleetResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALENDAR\tSTATUS\tPEOPLE\tEVENTS\tDURATION\tERROR")
	for _, r := range fleet.Results {
		status := "ok"
		errMsg := ""
		if !r.Result.Success {
			status = "failed"
			if r.Result.Err != nil {
				errMsg = r.Result.Err.Error()
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CalendarSlug,
			status,
			entityCounts(r.Result.Stats.People),
			entityCounts(r.Result.Stats.Events),
			time.Duration(r.Result.DurationMs)*time.Millisecond,
			errMsg,
		)
	}
	tw.Flush()

	t := fleet.Totals
	fmt.Fprintf(w, "\ncalendars: %d, failed: %d, duration: %s\n",
		len(fleet.Results), countFailed(fleet), fleet.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "people: %d found, %d created, %d updated\n", t.PeopleFound, t.PeopleCreated, t.PeopleUpdated)
	fmt.Fprintf(w, "events: %d found, %d created, %d updated\n", t.EventsFound, t.EventsCreated, t.EventsUpdated)
	fmt.Fprintf(w, "people linked: %d\n", t.PeopleLinked)
	if fleet.LinkErr != nil {
		fmt.Fprintf(w, "linking failed: %v\n", fleet.LinkErr)
	}
}

func printResult(w io.Writer, calendarID string, result *domain.SyncResult) {
	if !result.Success {
		fmt.Fprintf(w, "calendar %s failed (run %s): %v\n", calendarID, orDash(result.SyncRunID), result.Err)
		return
	}
	fmt.Fprintf(w, "calendar %s synced (run %s) in %dms\n", calendarID, result.SyncRunID, result.DurationMs)
	fmt.Fprintf(w, "people: %s\nevents: %s\n", entityCounts(result.Stats.People), entityCounts(result.Stats.Events))
}

func printRuns(w io.Writer, runs []domain.SyncRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCALENDAR\tSTATUS\tTRIGGER\tSTARTED\tDURATION\tPEOPLE\tEVENTS\tERROR")
	for _, r := range runs {
		duration := "-"
		if r.DurationMs != nil {
			duration = (time.Duration(*r.DurationMs) * time.Millisecond).String()
		}
		errMsg := ""
		if r.ErrorMessage != nil {
			errMsg = *r.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.CalendarID,
			r.Status,
			r.TriggeredBy,
			r.StartedAt.UTC().Format(time.RFC3339),
			duration,
			entityCounts(domain.EntityStats{Found: r.PeopleFound, Created: r.PeopleCreated, Updated: r.PeopleUpdated}),
			entityCounts(domain.EntityStats{Found: r.EventsFound, Created: r.EventsCreated, Updated: r.EventsUpdated}),
			errMsg,
		)
	}
	tw.Flush()
}

func printCalendars(w io.Writer, calendars []domain.Calendar) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tID\tEXTERNAL ID\tACTIVE\tLAST SYNC\tSTATUS\tPEOPLE\tEVENTS")
	for _, c := range calendars {
		lastSync := "-"
		if c.LastSyncAt != nil {
			lastSync = c.LastSyncAt.UTC().Format(time.RFC3339)
		}
		status := "-"
		if c.LastSyncStatus != nil {
			status = string(*c.LastSyncStatus)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%d\t%d\n",
			c.Slug, c.ID, c.ExternalID, c.IsActive, lastSync, status, c.TotalPeople, c.TotalEvents)
	}
	tw.Flush()
}

// entityCounts renders found/created/updated.
func entityCounts(s domain.EntityStats) string {
	return fmt.Sprintf("%d/%d/%d", s.Found, s.Created, s.Updated)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
