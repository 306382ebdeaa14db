package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coachcal/coachcal/internal/telemetry/tracing"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const maxListResults = 2500

// API is the remote calendar boundary, faked in tests.
type API interface {
	ListEvents(ctx context.Context, trainerID int, from, to time.Time) ([]Event, error)
	GetEvent(ctx context.Context, trainerID int, eventID string) (*Event, error)
	CreateEvent(ctx context.Context, trainerID int, event Event) (string, error)
	UpdateEvent(ctx context.Context, trainerID int, eventID string, changes EventChanges) (*Event, error)
	DeleteEvent(ctx context.Context, trainerID int, eventID string) error
}

// EventChanges carries only the fields an update wants to touch, the
// rest of the remote event is preserved.
type EventChanges struct {
	Summary     *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
}

type GoogleAPI struct {
	tokens     *GoogleTokenService
	httpClient *http.Client
	location   *time.Location
}

func NewGoogleAPI(tokens *GoogleTokenService) (*GoogleAPI, error) {
	loc, err := time.LoadLocation(EventTimeZone)
	if err != nil {
		return nil, fmt.Errorf("load location %s: %w", EventTimeZone, err)
	}
	return &GoogleAPI{
		tokens: tokens,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		location: loc,
	}, nil
}

func (g *GoogleAPI) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	return gcal.NewService(
		ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	)
}

// withAuthRetry runs one remote call; on an expired token it refreshes
// exactly once and retries exactly once, then gives up with
// ErrReauthRequired. This is the only place the retry lives.
func (g *GoogleAPI) withAuthRetry(ctx context.Context, trainerID int, call func(svc *gcal.Service, calendarID string) error) error {
	token, err := g.tokens.GetValidAccessToken(ctx, trainerID)
	if err != nil {
		return err
	}
	calendarID, err := g.tokens.CalendarID(ctx, trainerID)
	if err != nil {
		return err
	}

	svc, err := g.service(ctx, token)
	if err != nil {
		return fmt.Errorf("create calendar service: %w", err)
	}

	err = call(svc, calendarID)
	if !isAuthExpired(err) {
		return err
	}

	token, err = g.tokens.RefreshAccessToken(ctx, trainerID)
	if err != nil {
		return err
	}
	svc, err = g.service(ctx, token)
	if err != nil {
		return fmt.Errorf("create calendar service: %w", err)
	}

	if err := call(svc, calendarID); err != nil {
		if isAuthExpired(err) {
			return ErrReauthRequired
		}
		return err
	}
	return nil
}

func isAuthExpired(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusUnauthorized
}

func isGone(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) &&
		(gErr.Code == http.StatusNotFound || gErr.Code == http.StatusGone)
}

func (g *GoogleAPI) ListEvents(ctx context.Context, trainerID int, from, to time.Time) (_ []Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.google.listEvents")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))
	span.SetAttributes(attribute.String("from", from.Format(time.RFC3339)))
	span.SetAttributes(attribute.String("to", to.Format(time.RFC3339)))

	var events []Event
	err = g.withAuthRetry(ctx, trainerID, func(svc *gcal.Service, calendarID string) error {
		res, err := svc.Events.List(calendarID).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(maxListResults).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}

		events = make([]Event, 0, len(res.Items))
		for _, item := range res.Items {
			events = append(events, g.fromGoogle(item))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("events.count", len(events)))
	return events, nil
}

func (g *GoogleAPI) GetEvent(ctx context.Context, trainerID int, eventID string) (_ *Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.google.getEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("event.id", eventID))

	var event Event
	err = g.withAuthRetry(ctx, trainerID, func(svc *gcal.Service, calendarID string) error {
		item, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return err
		}
		event = g.fromGoogle(item)
		return nil
	})
	if isGone(err) {
		return nil, ErrEventGone
	}
	if err != nil {
		return nil, err
	}
	// cancelled single instances come back as tombstones
	if event.Status == "cancelled" {
		return nil, ErrEventGone
	}
	return &event, nil
}

func (g *GoogleAPI) CreateEvent(ctx context.Context, trainerID int, event Event) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.google.createEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("event.summary", event.Summary))

	if event.End.IsZero() {
		event.End = event.Start.Add(DefaultEventDuration)
	}

	payload := &gcal.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Start: &gcal.EventDateTime{
			DateTime: event.Start.Format(time.RFC3339),
			TimeZone: EventTimeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: event.End.Format(time.RFC3339),
			TimeZone: EventTimeZone,
		},
	}
	for _, a := range event.Attendees {
		payload.Attendees = append(payload.Attendees, &gcal.EventAttendee{Email: a.Email})
	}

	var newID string
	err = g.withAuthRetry(ctx, trainerID, func(svc *gcal.Service, calendarID string) error {
		created, err := svc.Events.Insert(calendarID, payload).Context(ctx).Do()
		if err != nil {
			return err
		}
		newID = created.Id
		return nil
	})
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("event.id", newID))
	return newID, nil
}

// UpdateEvent fetches the current remote event, merges only the provided
// fields and resubmits it as a full replacement. A vanished event comes
// back as ErrEventGone so callers reconcile instead of retrying.
func (g *GoogleAPI) UpdateEvent(ctx context.Context, trainerID int, eventID string, changes EventChanges) (_ *Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.google.updateEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("event.id", eventID))

	var updated Event
	err = g.withAuthRetry(ctx, trainerID, func(svc *gcal.Service, calendarID string) error {
		existing, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return err
		}

		if changes.Summary != nil {
			existing.Summary = *changes.Summary
		}
		if changes.Description != nil {
			existing.Description = *changes.Description
		}
		if changes.Location != nil {
			existing.Location = *changes.Location
		}
		if changes.Start != nil {
			existing.Start = &gcal.EventDateTime{
				DateTime: changes.Start.Format(time.RFC3339),
				TimeZone: EventTimeZone,
			}
		}
		if changes.End != nil {
			existing.End = &gcal.EventDateTime{
				DateTime: changes.End.Format(time.RFC3339),
				TimeZone: EventTimeZone,
			}
		}

		item, err := svc.Events.Update(calendarID, eventID, existing).Context(ctx).Do()
		if err != nil {
			return err
		}
		updated = g.fromGoogle(item)
		return nil
	})
	if isGone(err) {
		return nil, ErrEventGone
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteEvent is idempotent, deleting an already-gone event succeeds.
func (g *GoogleAPI) DeleteEvent(ctx context.Context, trainerID int, eventID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.google.deleteEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("event.id", eventID))

	err = g.withAuthRetry(ctx, trainerID, func(svc *gcal.Service, calendarID string) error {
		return svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
	if isGone(err) {
		return nil
	}
	return err
}

func (g *GoogleAPI) fromGoogle(item *gcal.Event) Event {
	e := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
	}

	for _, a := range item.Attendees {
		e.Attendees = append(e.Attendees, Attendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}

	if item.Start != nil {
		if item.Start.DateTime != "" {
			if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
				e.Start = t.In(g.location)
			}
		} else if item.Start.Date != "" {
			if t, err := time.ParseInLocation("2006-01-02", item.Start.Date, g.location); err == nil {
				e.Start = t
				e.AllDay = true
			}
		}
	}

	if item.End != nil {
		if item.End.DateTime != "" {
			if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
				e.End = t.In(g.location)
			}
		} else if item.End.Date != "" {
			if t, err := time.ParseInLocation("2006-01-02", item.End.Date, g.location); err == nil {
				e.End = t
			}
		}
	}
	if e.End.IsZero() && !e.Start.IsZero() {
		e.End = e.Start.Add(DefaultEventDuration)
	}

	return e
}
