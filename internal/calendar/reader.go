package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/coachcal/coachcal/internal/telemetry/metrics"
	"github.com/coachcal/coachcal/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type syncRecordStore interface {
	ListInRange(ctx context.Context, trainerID int, from, to time.Time, status SyncStatus) ([]SyncRecord, error)
	Upsert(ctx context.Context, record SyncRecord) (*SyncRecord, error)
	UpdateCachedEvent(ctx context.Context, id int, event Event) error
	Delete(ctx context.Context, id int) error
}

// Reader serves calendar events for a date range. Reads prefer local
// state: a short-lived in-process window cache first, then the sync
// records, and only then the remote calendar. Records are trusted only
// after a sampled spot check against the remote side; the check races a
// deadline so a slow remote never holds up the response.
type Reader struct {
	api           API
	syncRepo      syncRecordStore
	reconciler    *Reconciler
	cache         *EventCache
	metrics       *metrics.Manager
	sampleSize    int
	sampleTimeout time.Duration
}

func NewReader(
	api API,
	syncRepo syncRecordStore,
	reconciler *Reconciler,
	cache *EventCache,
	metricsManager *metrics.Manager,
	sampleSize int,
	sampleTimeout time.Duration,
) *Reader {
	return &Reader{
		api:           api,
		syncRepo:      syncRepo,
		reconciler:    reconciler,
		cache:         cache,
		metrics:       metricsManager,
		sampleSize:    sampleSize,
		sampleTimeout: sampleTimeout,
	}
}

func (r *Reader) GetEvents(ctx context.Context, trainerID int, from, to time.Time, forceRefresh bool) (_ []Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.reader.getEvents")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))
	span.SetAttributes(attribute.Bool("force.refresh", forceRefresh))

	if from.After(to) {
		return nil, ErrInvalidRange
	}

	if forceRefresh {
		return r.fetchRemote(ctx, trainerID, from, to)
	}

	if events, ok := r.cache.Get(trainerID, from, to); ok {
		r.metrics.CounterEventCacheHits.Inc()
		span.SetAttributes(attribute.String("source", "window-cache"))
		return events, nil
	}
	r.metrics.CounterEventCacheMisses.Inc()

	// pad the start by a day so a multi-hour event beginning before the
	// range but overlapping it is not missed, then filter precisely
	records, err := r.syncRepo.ListInRange(
		ctx, trainerID, from.AddDate(0, 0, -1), to, SyncStatusSynced,
	)
	if err != nil {
		log.Warnf("get events for trainer %d: list sync records: %s", trainerID, err)
		return r.fetchRemote(ctx, trainerID, from, to)
	}

	inRange := make([]SyncRecord, 0, len(records))
	for _, rec := range records {
		if rec.ToEvent().Overlaps(from, to) {
			inRange = append(inRange, rec)
		}
	}
	if len(inRange) == 0 {
		return r.fetchRemote(ctx, trainerID, from, to)
	}

	events := make([]Event, 0, len(inRange))
	for _, rec := range inRange {
		events = append(events, rec.ToEvent())
	}

	sample := inRange
	if len(sample) > r.sampleSize {
		sample = sample[:r.sampleSize]
	}

	// spot-check the sample against the remote calendar, but never for
	// longer than the deadline: a slow remote means we serve the cached
	// events now and let the check finish in the background
	valid := make(chan bool, 1)
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		valid <- r.validateSample(bgCtx, trainerID, sample)
	}()

	select {
	case ok := <-valid:
		if ok {
			span.SetAttributes(attribute.String("source", "sync-records"))
			r.cache.Set(trainerID, from, to, events)
			return events, nil
		}
		span.SetAttributes(attribute.String("source", "remote-after-stale-sample"))
		return r.fetchRemote(ctx, trainerID, from, to)
	case <-time.After(r.sampleTimeout):
		span.SetAttributes(attribute.String("source", "sync-records-unvalidated"))
		log.Warnf(
			"get events for trainer %d: sample validation exceeded %s, serving cached",
			trainerID, r.sampleTimeout,
		)
		return events, nil
	}
}

// validateSample looks up each sampled record on the remote calendar.
// Only a vanished event fails the sample: it gets reconciled and the
// caller refetches the whole range. Cached fields that merely drifted
// are repaired in place, and transient remote errors are tolerated.
func (r *Reader) validateSample(ctx context.Context, trainerID int, sample []SyncRecord) bool {
	allValid := true
	for i := range sample {
		rec := sample[i]
		remote, err := r.api.GetEvent(ctx, trainerID, rec.GoogleEventID)
		switch {
		case errors.Is(err, ErrEventGone):
			r.reconciler.EventGone(ctx, &rec)
			allValid = false
		case err != nil:
			log.Warnf(
				"validate sample for trainer %d: get event %s: %s",
				trainerID, rec.GoogleEventID, err,
			)
		case cachedEventDrifted(rec, *remote):
			log.Debugf(
				"cache inconsistency for event %s [record %d], repairing",
				rec.GoogleEventID, rec.ID,
			)
			if err := r.syncRepo.UpdateCachedEvent(ctx, rec.ID, *remote); err != nil {
				log.Errorf("repair cached event %s: %s", rec.GoogleEventID, err)
			}
		}
	}
	return allValid
}

func cachedEventDrifted(rec SyncRecord, remote Event) bool {
	return rec.EventSummary != remote.Summary ||
		!rec.EventStartTime.Equal(remote.Start) ||
		!rec.EventEndTime.Equal(remote.End)
}

// fetchRemote lists the remote calendar for the range, repairs or
// reconciles the local records it maps onto, and fills the window cache.
func (r *Reader) fetchRemote(ctx context.Context, trainerID int, from, to time.Time) (_ []Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.reader.fetchRemote")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	events, err := r.api.ListEvents(ctx, trainerID, from, to)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.count", len(events)))

	r.refreshRecords(ctx, trainerID, from, to, events)
	r.cache.Set(trainerID, from, to, events)
	return events, nil
}

func (r *Reader) refreshRecords(ctx context.Context, trainerID int, from, to time.Time, remote []Event) {
	records, err := r.syncRepo.ListInRange(
		ctx, trainerID, from.AddDate(0, 0, -1), to, "",
	)
	if err != nil {
		log.Warnf("refresh records for trainer %d: %s", trainerID, err)
		return
	}

	remoteByID := make(map[string]Event, len(remote))
	for _, e := range remote {
		remoteByID[e.ID] = e
	}

	for i := range records {
		rec := records[i]
		if !rec.ToEvent().Overlaps(from, to) {
			continue
		}
		remoteEvent, exists := remoteByID[rec.GoogleEventID]
		if !exists {
			r.reconciler.EventGone(ctx, &rec)
			continue
		}
		if cachedEventDrifted(rec, remoteEvent) {
			if err := r.syncRepo.UpdateCachedEvent(ctx, rec.ID, remoteEvent); err != nil {
				log.Errorf("repair cached event %s: %s", rec.GoogleEventID, err)
			}
		}
	}
}
