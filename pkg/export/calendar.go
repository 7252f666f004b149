package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"wbs-gantt/pkg/model"
	"wbs-gantt/pkg/wbs"
)

// taskIDProperty tags published events so a re-publish patches them.
const taskIDProperty = "wbs_gantt_task_id"

// CalendarPublisher mirrors task spans as all-day events on one calendar.
type CalendarPublisher struct {
	srv        *calendar.Service
	calendarID string
}

// NewCalendarPublisher wraps an existing service.
func NewCalendarPublisher(srv *calendar.Service, calendarID string) *CalendarPublisher {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &CalendarPublisher{srv: srv, calendarID: calendarID}
}

// NewCalendarPublisherFromFiles builds the service from a Google client
// secrets file and a previously saved OAuth token.
func NewCalendarPublisherFromFiles(ctx context.Context, secretsFile, tokenFile, calendarID string) (*CalendarPublisher, error) {
	b, err := os.ReadFile(secretsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", secretsFile, err)
	}
	cfg, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	tok, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar service: %w", err)
	}
	return NewCalendarPublisher(srv, calendarID), nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token %s: %w", path, err)
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return &tok, nil
}

// TaskEvent converts a task to an all-day event. The calendar end date is
// exclusive, so it is one day after the task end.
func TaskEvent(root string, t model.Task) (*calendar.Event, error) {
	if err := wbs.ValidateSpan(t.StartDate, t.EndDate); err != nil {
		return nil, fmt.Errorf("task %s: %w", t.WBS, err)
	}
	end, _ := wbs.ParseDate(t.EndDate)
	desc := fmt.Sprintf("Project %s\nLead: %s\nProgress: %d%%\nPriority: %s", root, t.LeadName(), t.Progress, t.Priority)
	if t.Description != "" {
		desc += "\n\n" + t.Description
	}
	return &calendar.Event{
		Summary:     t.WBS + ": " + t.Name,
		Description: desc,
		Start:       &calendar.EventDateTime{Date: t.StartDate},
		End:         &calendar.EventDateTime{Date: end.AddDate(0, 0, 1).Format(wbs.DateLayout)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{taskIDProperty: strconv.FormatInt(t.ID, 10)},
		},
	}, nil
}

// PublishResult counts the outcome per task.
type PublishResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped,omitempty"`
}

// Publish creates or patches one event per task. Tasks without a valid
// span are skipped and reported.
func (p *CalendarPublisher) Publish(ctx context.Context, root string, tasks []model.Task) (PublishResult, error) {
	var res PublishResult
	for _, t := range tasks {
		ev, err := TaskEvent(root, t)
		if err != nil {
			res.Skipped = append(res.Skipped, err.Error())
			continue
		}
		existing, err := p.srv.Events.List(p.calendarID).
			PrivateExtendedProperty(fmt.Sprintf("%s=%d", taskIDProperty, t.ID)).
			Context(ctx).Do()
		if err != nil {
			return res, fmt.Errorf("error searching for event: %w", err)
		}
		if len(existing.Items) > 0 {
			if _, err := p.srv.Events.Patch(p.calendarID, existing.Items[0].Id, ev).Context(ctx).Do(); err != nil {
				return res, fmt.Errorf("patch event for %s: %w", t.WBS, err)
			}
			res.Updated++
			continue
		}
		if _, err := p.srv.Events.Insert(p.calendarID, ev).Context(ctx).Do(); err != nil {
			return res, fmt.Errorf("insert event for %s: %w", t.WBS, err)
		}
		res.Created++
	}
	log.Printf("calendar publish root=%s created=%d updated=%d skipped=%d", root, res.Created, res.Updated, len(res.Skipped))
	return res, nil
}
