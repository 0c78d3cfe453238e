package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/pingwatch/internal/domain"
	"github.com/samvad-hq/pingwatch/internal/logger"
	"github.com/samvad-hq/pingwatch/internal/storage"
	"github.com/samvad-hq/pingwatch/pkg/httpclient"
	"github.com/samvad-hq/pingwatch/pkg/publishers"
	"github.com/samvad-hq/pingwatch/pkg/targets"
)

// Service probes targets with a timeout-enforcing client and publishes
// outcome transitions.
type Service struct {
	defaults   targets.Defaults
	publisher  EventPublisher
	store      storage.Store
	log        logger.Logger
	clientOpts []httpclient.Option

	mu      sync.Mutex
	clients map[string]cachedClient
}

type cachedClient struct {
	cfg    httpclient.Config
	client *httpclient.Client
}

// NewService wires a prober. A nil store records nothing and a nil publisher drops events.
func NewService(def targets.Defaults, pub EventPublisher, store storage.Store, log logger.Logger, opts ...httpclient.Option) *Service {
	if store == nil {
		store, _ = storage.NewStore("none", "", storage.Options{})
	}
	return &Service{
		defaults:   def,
		publisher:  pub,
		store:      store,
		log:        logger.Ensure(log),
		clientOpts: opts,
		clients:    make(map[string]cachedClient),
	}
}

// Run probes every target once, in order. It stops early when ctx is done.
func (s *Service) Run(ctx context.Context, tgts []targets.Target) error {
	if s == nil {
		return fmt.Errorf("probe service is not initialized")
	}
	if len(tgts) == 0 {
		return fmt.Errorf("no targets configured for probing")
	}

	var errs []error
	for _, t := range tgts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.Probe(ctx, t)
		if err != nil {
			errs = append(errs, err)
			s.log.ErrorObj("target probe failed", "probe_error", map[string]any{
				"target_id": t.ID,
				"error":     err.Error(),
			})
			continue
		}
		if err := s.record(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Probe performs a single GET against the target. A failed request yields a
// down result, not an error; errors are reserved for invalid target settings.
func (s *Service) Probe(ctx context.Context, t targets.Target) (domain.ProbeResult, error) {
	client, err := s.clientFor(t)
	if err != nil {
		return domain.ProbeResult{}, err
	}

	start := time.Now()
	body, err := client.Get(ctx, t.Path, t.Accept)
	res := domain.ProbeResult{
		TargetID:   t.ID,
		TargetName: t.Name,
		URL:        t.URL(),
		Latency:    time.Since(start),
		CheckedAt:  start.UTC(),
	}

	if err != nil {
		res.Outcome = domain.OutcomeDown
		res.Error = err.Error()
		if kind, ok := httpclient.KindOf(err); ok {
			res.ErrorKind = kind.String()
		}
		var herr *httpclient.Error
		if errors.As(err, &herr) {
			res.StatusCode = herr.StatusCode
		}
		s.log.WarnObj("target down", "probe_result", res)
		return res, nil
	}

	res.Outcome = domain.OutcomeUp
	if t.ExpectBody != "" && strings.TrimSpace(body) != t.ExpectBody {
		res.Outcome = domain.OutcomeDown
		res.ErrorKind = domain.ErrorKindUnexpectedBody
		res.Error = fmt.Sprintf("body %q does not match %q", truncate(body, 64), t.ExpectBody)
	}
	if wantsHTML(t.Accept) {
		res.Title = pageTitle(body)
	}

	s.log.DebugObj("target probed", "probe_result", res)
	return res, nil
}

// record persists the outcome and publishes an event when it changed or was
// never seen before.
func (s *Service) record(ctx context.Context, res domain.ProbeResult) error {
	prev, seen, err := s.store.LastOutcome(res.TargetID)
	if err != nil {
		return fmt.Errorf("load last outcome for %s: %w", res.TargetID, err)
	}
	if seen && prev == res.Outcome {
		return s.save(res)
	}

	if s.publisher != nil {
		evt := publishers.NewEvent(res, prev)
		delivered, err := s.publisher.Publish(ctx, evt)
		if err != nil {
			s.log.ErrorObj("outcome event publish failed", "publish_error", map[string]any{
				"target_id": res.TargetID,
				"event_id":  evt.ID,
				"delivered": delivered,
				"error":     err.Error(),
			})
			if delivered == 0 {
				// Leave the stored outcome untouched so the transition is retried.
				return fmt.Errorf("publish outcome for %s: %w", res.TargetID, err)
			}
		}
		s.log.InfoObj("outcome changed", "outcome_transition", map[string]any{
			"target_id": res.TargetID,
			"previous":  prev,
			"current":   res.Outcome,
			"event_id":  evt.ID,
		})
	}
	return s.save(res)
}

func (s *Service) save(res domain.ProbeResult) error {
	if err := s.store.SaveOutcome(res.TargetID, res.Outcome); err != nil {
		return fmt.Errorf("save outcome for %s: %w", res.TargetID, err)
	}
	return nil
}

// clientFor returns the cached client for the target, rebuilding it when the
// resolved configuration changed.
func (s *Service) clientFor(t targets.Target) (*httpclient.Client, error) {
	cfg, err := t.ClientConfig(s.defaults)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.clients[t.ID]; ok && cached.cfg == cfg {
		return cached.client, nil
	}
	client, err := httpclient.New(cfg, s.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("build client for target %s: %w", t.ID, err)
	}
	s.clients[t.ID] = cachedClient{cfg: cfg, client: client}
	return client, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
