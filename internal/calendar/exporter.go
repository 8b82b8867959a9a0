package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"churchops/internal/clock"
	"churchops/internal/models"
	"churchops/internal/storage"
)

// ErrNoAssociatedEvent is returned when a notification references neither
// an event nor a schedule, so there is nothing to export.
var ErrNoAssociatedEvent = errors.New("calendar: notification has no associated event or schedule")

// EventDetails is the transport-neutral description of a calendar entry.
// All three export formats (ICS file, Google link, Outlook link) render
// from the same details.
type EventDetails struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Exporter resolves a notification to calendar details and renders them.
type Exporter struct {
	store storage.Storage
	clock clock.Clock
}

func NewExporter(store storage.Storage, clk clock.Clock) *Exporter {
	return &Exporter{store: store, clock: clk}
}

// Describe resolves the calendar details for a notification. An event
// reference wins over a schedule reference; a schedule is projected onto
// its next occurrence from now (a matching weekday today counts as today).
func (x *Exporter) Describe(ctx context.Context, n *models.Notification) (*EventDetails, error) {
	if n.EventID != "" {
		e, err := x.store.GetEvent(ctx, n.EventID)
		if err != nil {
			return nil, fmt.Errorf("load event: %w", err)
		}
		return &EventDetails{
			Title:       e.Name,
			Description: e.Description,
			Location:    e.Location,
			Start:       e.StartDatetime,
			End:         e.EndDatetime,
		}, nil
	}

	if n.ScheduleID != "" {
		sch, err := x.store.GetSchedule(ctx, n.ScheduleID)
		if err != nil {
			return nil, fmt.Errorf("load schedule: %w", err)
		}
		return x.describeSchedule(ctx, sch)
	}

	return nil, ErrNoAssociatedEvent
}

func (x *Exporter) describeSchedule(ctx context.Context, sch *models.Schedule) (*EventDetails, error) {
	target, err := parseWeekday(sch.DayOfWeek)
	if err != nil {
		return nil, err
	}

	now := x.clock.Now()
	days := (int(target) - int(now.Weekday()) + 7) % 7
	date := now.AddDate(0, 0, days)

	start, err := atClockTime(date, sch.StartTime)
	if err != nil {
		return nil, fmt.Errorf("schedule start time: %w", err)
	}
	end, err := atClockTime(date, sch.EndTime)
	if err != nil {
		return nil, fmt.Errorf("schedule end time: %w", err)
	}

	ministryName := "Ministerio"
	if m, merr := x.store.GetMinistry(ctx, sch.MinistryID); merr == nil {
		ministryName = m.Name
	}

	description := fmt.Sprintf("Servicio en el ministerio de %s", ministryName)
	if srv, serr := x.store.GetServer(ctx, sch.ServerID); serr == nil && srv.Position != "" {
		description += fmt.Sprintf(" como %s", srv.Position)
	}

	return &EventDetails{
		Title:       "Servicio - " + ministryName,
		Description: description,
		Location:    "Iglesia",
		Start:       start,
		End:         end,
	}, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(name) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown day of week %q", name)
}

// atClockTime places an "HH:MM" wall-clock time on the given date, keeping
// the date's location.
func atClockTime(date time.Time, hhmm string) (time.Time, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed time %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return time.Time{}, fmt.Errorf("malformed hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return time.Time{}, fmt.Errorf("malformed minute in %q", hhmm)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, date.Location()), nil
}

// ICS renders the details as an iCalendar file with a single confirmed
// VEVENT. Times are written in UTC; the UID ties the entry back to the
// notification so re-downloads update in place instead of duplicating.
func (x *Exporter) ICS(d *EventDetails, notificationID, host string) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)

	ev := cal.AddEvent(fmt.Sprintf("notification-%s@%s", notificationID, host))
	ev.SetDtStampTime(x.clock.Now())
	ev.SetStartAt(d.Start)
	ev.SetEndAt(d.End)
	ev.SetSummary(d.Title)
	if d.Description != "" {
		ev.SetDescription(d.Description)
	}
	if d.Location != "" {
		ev.SetLocation(d.Location)
	}
	ev.SetStatus(ics.ObjectStatusConfirmed)

	return cal.Serialize()
}

const compactTimeLayout = "20060102T150405"

// GoogleURL builds a calendar.google.com prefilled-event link.
func (x *Exporter) GoogleURL(d *EventDetails) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", d.Title)
	q.Set("dates", d.Start.Format(compactTimeLayout)+"/"+d.End.Format(compactTimeLayout))
	q.Set("details", d.Description)
	q.Set("location", d.Location)
	return "https://calendar.google.com/calendar/render?" + q.Encode()
}

// OutlookURL builds an outlook.live.com compose deep link.
func (x *Exporter) OutlookURL(d *EventDetails) string {
	q := url.Values{}
	q.Set("path", "/calendar/action/compose")
	q.Set("rru", "addevent")
	q.Set("subject", d.Title)
	q.Set("startdt", d.Start.Format("2006-01-02T15:04:05"))
	q.Set("enddt", d.End.Format("2006-01-02T15:04:05"))
	q.Set("body", d.Description)
	q.Set("location", d.Location)
	return "https://outlook.live.com/calendar/0/deeplink/compose?" + q.Encode()
}
