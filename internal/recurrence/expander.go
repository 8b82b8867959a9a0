package recurrence

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"churchops/internal/clock"
	"churchops/internal/models"
)

// defaultMaxInstances caps a single expansion so a bad end date cannot
// materialize an unbounded series.
const defaultMaxInstances = 1000

// defaultHorizon bounds expansion when the template has no explicit
// recurrence end date.
const defaultHorizon = time.Hour * 24 * 365

// rruleWeekdays maps day-of-week config values (0 = Sunday, as stored by
// the recurrence config) to RRULE weekdays.
var rruleWeekdays = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

type Expander struct {
	clock        clock.Clock
	log          zerolog.Logger
	maxInstances int
}

func NewExpander(clk clock.Clock, log zerolog.Logger) *Expander {
	return &Expander{
		clock:        clk,
		log:          log.With().Str("component", "recurrence").Logger(),
		maxInstances: defaultMaxInstances,
	}
}

// Expand generates concrete instance events for a recurring template, from
// the template's start up to its recurrence end date (end of that day,
// inclusive). The template's own start is never re-emitted. An
// unrecognized recurrence type terminates expansion with zero instances
// rather than an error.
func (x *Expander) Expand(template *models.Event) ([]*models.Event, error) {
	if !template.IsRecurring || template.RecurrenceType == "" {
		return nil, nil
	}

	start := template.StartDatetime
	until := x.endBound(template)
	if until.Before(start) {
		return nil, nil
	}

	opt, ok := ruleOption(template, start, until)
	if !ok {
		x.log.Warn().
			Str("event_id", template.ID).
			Str("recurrence_type", string(template.RecurrenceType)).
			Msg("unrecognized recurrence type, expanding to zero instances")
		return nil, nil
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}

	occurrences := rule.Between(start, until, true)

	now := x.clock.Now()
	duration := template.Duration()
	instances := make([]*models.Event, 0, len(occurrences))
	for _, occ := range occurrences {
		if occ.Equal(start) {
			continue
		}
		if len(instances) >= x.maxInstances {
			x.log.Warn().
				Str("event_id", template.ID).
				Int("cap", x.maxInstances).
				Msg("expansion truncated at instance cap")
			break
		}
		instances = append(instances, &models.Event{
			ID:                 uuid.NewString(),
			Name:               template.Name,
			Description:        template.Description,
			Type:               template.Type,
			StartDatetime:      occ,
			EndDatetime:        occ.Add(duration),
			Location:           template.Location,
			RequiredMinistries: template.RequiredMinistries,
			Status:             models.EventPlanned,
			CreatedBy:          template.CreatedBy,
			IsRecurring:        false,
			ParentEventID:      template.ID,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}
	return instances, nil
}

// endBound is the recurrence end date taken as inclusive of its whole day,
// or start + one year when unset.
func (x *Expander) endBound(template *models.Event) time.Time {
	start := template.StartDatetime
	if template.RecurrenceEndDate == nil {
		return start.Add(defaultHorizon)
	}
	end := *template.RecurrenceEndDate
	return time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, start.Location())
}

func ruleOption(template *models.Event, start, until time.Time) (rrule.ROption, bool) {
	cfg := template.RecurrenceConfig
	if cfg == nil {
		cfg = &models.RecurrenceConfig{}
	}

	opt := rrule.ROption{
		Dtstart: start,
		Until:   until,
	}

	switch template.RecurrenceType {
	case models.RecurrenceDaily:
		opt.Freq = rrule.DAILY
		opt.Interval = cfg.Interval
		if opt.Interval <= 0 {
			opt.Interval = 1
		}
	case models.RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{weekdayFor(cfg, start)}
	case models.RecurrenceBiweekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
		opt.Byweekday = []rrule.Weekday{weekdayFor(cfg, start)}
	case models.RecurrenceMonthly:
		opt.Freq = rrule.MONTHLY
		day := start.Day()
		if cfg.DayOfMonth != nil {
			day = *cfg.DayOfMonth
		}
		// Months without this day are skipped entirely (BYMONTHDAY
		// semantics); no clamping to the last day.
		opt.Bymonthday = []int{day}
	default:
		return rrule.ROption{}, false
	}
	return opt, true
}

func weekdayFor(cfg *models.RecurrenceConfig, start time.Time) rrule.Weekday {
	dow := int(start.Weekday())
	if cfg.DayOfWeek != nil && *cfg.DayOfWeek >= 0 && *cfg.DayOfWeek <= 6 {
		dow = *cfg.DayOfWeek
	}
	return rruleWeekdays[dow]
}
