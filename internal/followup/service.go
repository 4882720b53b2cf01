package followup

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/nudge/internal/caserec"
	"github.com/linnemanlabs/nudge/internal/directory"
)

// Mailer delivers one assembled intent to its recipient set.
type Mailer interface {
	Deliver(ctx context.Context, intent *NotificationIntent) error
}

// RunNotifier posts a finished run summary to an ops channel.
type RunNotifier interface {
	Send(ctx context.Context, run *Run) error
}

// Summarizer produces a short natural-language digest of a run.
type Summarizer interface {
	Summarize(ctx context.Context, run *Run) (string, error)
}

// SubmitOptions control a single run.
type SubmitOptions struct {
	// OwnerFilter restricts the run to the owner with this contact
	// address. Empty means all owners.
	OwnerFilter string

	// Deliver sends mail for each intent. False stages intents only.
	Deliver bool
}

// SubmitResult is the outcome of submitting an export for a run.
type SubmitResult struct {
	ID      string
	Intents int
	Skipped bool
	Reason  string
}

// Service is the business boundary for follow-up runs. It owns run
// lifecycle: grouping, assembly, persistence, delivery dispatch, and
// metrics. The pipeline itself is pure; the Service adds the effects.
type Service struct {
	store      Store
	dir        *directory.Directory
	mailer     Mailer      // nil = staging only
	notifier   RunNotifier // nil = no ops summary
	summarizer Summarizer  // nil = no digest
	metrics    *Metrics
	logger     log.Logger

	wg sync.WaitGroup
}

// NewService creates a new follow-up service.
func NewService(store Store, dir *directory.Directory, mailer Mailer, notifier RunNotifier, summarizer Summarizer, metrics *Metrics, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:      store,
		dir:        dir,
		mailer:     mailer,
		notifier:   notifier,
		summarizer: summarizer,
		metrics:    metrics,
		logger:     logger,
	}
}

// Submit runs the grouping/resolution/assembly pipeline over an export
// and persists the resulting run. The pipeline is synchronous; delivery,
// digest, and the ops summary are dispatched in the background so the
// caller gets the run ID immediately.
func (s *Service) Submit(ctx context.Context, records []caserec.Record, opts SubmitOptions) (*SubmitResult, error) {
	if len(records) == 0 {
		s.observeSubmit("empty")
		return &SubmitResult{Skipped: true, Reason: "empty export"}, nil
	}

	start := time.Now()

	grouping := GroupByOwner(records, s.dir)
	intents := Assemble(grouping, s.dir, AssembleOptions{
		OwnerFilter: opts.OwnerFilter,
		GeneratedAt: start,
	})

	run := &Run{
		ID:               ulid.Make().String(),
		Status:           StatusPending,
		TotalCases:       len(records),
		OwnerCount:       len(grouping.Groups),
		UnresolvedOwners: grouping.UnresolvedOwners,
		OwnerFilter:      opts.OwnerFilter,
		Deliver:          opts.Deliver,
		Intents:          intents,
		CreatedAt:        start,
	}

	L := s.logger.With("run_id", run.ID)

	if len(grouping.UnresolvedOwners) > 0 {
		// Reported once per run, not per record; the run continues
		// for every resolvable owner.
		L.Warn(ctx, "owners missing from directory, cases excluded",
			"owners", grouping.UnresolvedOwners,
			"cases_excluded", grouping.UnresolvedCases,
		)
	}

	if err := s.store.Put(ctx, run); err != nil {
		s.observeSubmit("error")
		return nil, err
	}

	s.observeSubmit("accepted")
	if s.metrics != nil {
		s.metrics.RunCases.Observe(float64(run.TotalCases))
		s.metrics.RunOwners.Observe(float64(run.OwnerCount))
		s.metrics.RunIntents.Observe(float64(len(intents)))
		s.metrics.UnresolvedOwners.Add(float64(len(grouping.UnresolvedOwners)))
	}

	L.Info(ctx, "run submitted",
		"cases", run.TotalCases,
		"owners", run.OwnerCount,
		"intents", len(intents),
		"unresolved_owners", len(grouping.UnresolvedOwners),
		"deliver", opts.Deliver,
	)

	// Finish in the background - detach from the request context so an
	// early client disconnect doesn't cancel delivery mid-run.
	s.wg.Add(1)
	go s.finish(context.WithoutCancel(ctx), run.ID)

	return &SubmitResult{ID: run.ID, Intents: len(intents)}, nil
}

// Get retrieves a run by ID.
func (s *Service) Get(ctx context.Context, id string) (*Run, bool, error) {
	return s.store.Get(ctx, id)
}

// Drain blocks until in-flight background work finishes or the context
// expires. Called during shutdown so deliveries aren't cut off.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish delivers intents, generates the digest, posts the ops summary,
// and marks the run complete.
func (s *Service) finish(ctx context.Context, id string) {
	defer s.wg.Done()

	L := s.logger.With("run_id", id)

	run, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		L.Error(ctx, err, "failed to fetch run for finishing")
		return
	}

	run.Status = StatusInProgress
	if err := s.store.Put(ctx, run); err != nil {
		L.Error(ctx, err, "failed to update run status to in_progress")
		return
	}

	if run.Deliver && s.mailer != nil {
		s.deliverAll(ctx, L, run)
	}

	if s.summarizer != nil {
		digest, err := s.summarizer.Summarize(ctx, run)
		if err != nil {
			L.Error(ctx, err, "digest generation failed")
			s.observeDigest("error")
		} else {
			run.Digest = digest
			s.observeDigest("ok")
		}
	}

	run.Status = StatusComplete
	run.CompletedAt = time.Now()
	run.Duration = run.CompletedAt.Sub(run.CreatedAt).Seconds()

	if err := s.store.Put(ctx, run); err != nil {
		L.Error(ctx, err, "failed to persist finished run")
		return
	}

	if s.metrics != nil {
		s.metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()
		s.metrics.RunDuration.WithLabelValues(string(run.Status)).Observe(run.Duration)
	}

	if s.notifier != nil {
		if err := s.notifier.Send(ctx, run); err != nil {
			L.Error(ctx, err, "run summary notification failed")
		}
	}

	L.Info(ctx, "run complete",
		"duration", run.Duration,
		"intents", len(run.Intents),
		"delivered", countDelivery(run.Intents, DeliverySent),
		"failed", countDelivery(run.Intents, DeliveryFailed),
	)
}

// deliverAll sends each intent sequentially. A failed delivery records
// the error on the intent and continues; one bad mailbox never aborts
// the rest of the run.
func (s *Service) deliverAll(ctx context.Context, L log.Logger, run *Run) {
	for i := range run.Intents {
		intent := &run.Intents[i]

		start := time.Now()
		err := s.mailer.Deliver(ctx, intent)
		dur := time.Since(start)

		if s.metrics != nil {
			s.metrics.DeliveryDuration.Observe(dur.Seconds())
		}

		if err != nil {
			intent.Delivery = DeliveryFailed
			intent.DeliveryError = err.Error()
			s.observeDelivery(DeliveryFailed)
			L.Error(ctx, err, "intent delivery failed", "owner", intent.Owner)
			continue
		}

		intent.Delivery = DeliverySent
		s.observeDelivery(DeliverySent)
		L.Info(ctx, "intent delivered",
			"owner", intent.Owner,
			"recipients", intent.Recipients,
			"cases", len(intent.TopCases),
		)
	}
}

func (s *Service) observeSubmit(result string) {
	if s.metrics != nil {
		s.metrics.SubmitsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) observeDelivery(outcome string) {
	if s.metrics != nil {
		s.metrics.DeliveriesTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) observeDigest(outcome string) {
	if s.metrics != nil {
		s.metrics.DigestsTotal.WithLabelValues(outcome).Inc()
	}
}

func countDelivery(intents []NotificationIntent, outcome string) int {
	n := 0
	for i := range intents {
		if intents[i].Delivery == outcome {
			n++
		}
	}
	return n
}
