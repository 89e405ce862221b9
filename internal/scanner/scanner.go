// Package scanner runs the detection cycle: fetch both venues, match games,
// detect opportunities and hand them to the sinks and the executor.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/matcher"
)

// Detector evaluates one matched game.
type Detector interface {
	Detect(ev domain.MatchedEvent) (domain.ArbitrageOpportunity, error)
}

// Metrics receives per-cycle counters. *metrics.Metrics satisfies it.
type Metrics interface {
	ObserveCycle(d time.Duration)
	FetchError(venue domain.Venue)
	Markets(venue domain.Venue, sport domain.Sport, n int)
	Matched(sport domain.Sport, n int)
	Rejected(reason string)
}

// Config controls the cycle.
type Config struct {
	Sports       []domain.Sport
	Interval     time.Duration
	FetchWorkers int // per venue
}

type instrumentKey struct {
	venue domain.Venue
	id    string
}

// seenRetention is how many cycles an instrument may be missing from its
// venue's fetches before its last timestamp is forgotten.
const seenRetention = 5

type seen struct {
	at    time.Time
	cycle uint64
}

// Scanner owns the detection cycle. Opportunities are published to the
// sink and, when an output channel is set, offered to the executor without
// blocking.
type Scanner struct {
	cfg      Config
	a, b     domain.MarketFetcher
	matcher  *matcher.Matcher
	detector Detector
	sink     domain.EventSink
	out      chan<- domain.ArbitrageOpportunity
	metrics  Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	cycle    uint64
	lastSeen map[instrumentKey]seen
}

// New creates a Scanner. out may be nil for detect-only operation.
func New(
	cfg Config,
	a, b domain.MarketFetcher,
	m *matcher.Matcher,
	det Detector,
	sink domain.EventSink,
	out chan<- domain.ArbitrageOpportunity,
	metrics Metrics,
	logger *slog.Logger,
) *Scanner {
	if cfg.FetchWorkers < 1 {
		cfg.FetchWorkers = 1
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Scanner{
		cfg:      cfg,
		a:        a,
		b:        b,
		matcher:  m,
		detector: det,
		sink:     sink,
		out:      out,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "scanner")),
		lastSeen: make(map[instrumentKey]seen),
	}
}

// Run executes a cycle immediately and then every Interval until ctx is
// cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scanner starting",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("sports", len(s.cfg.Sports)),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Cycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle runs one detection pass over every configured sport and returns the
// opportunities found. A venue fetch failure skips that sport for the cycle.
func (s *Scanner) Cycle(ctx context.Context) ([]domain.ArbitrageOpportunity, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveCycle(time.Since(start)) }()

	s.mu.Lock()
	s.cycle++
	s.mu.Unlock()
	defer s.prune()

	var snapA, snapB map[domain.Sport][]domain.NormalizedMarket
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snapA = s.fetchAll(gctx, s.a)
		return nil
	})
	g.Go(func() error {
		snapB = s.fetchAll(gctx, s.b)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opps []domain.ArbitrageOpportunity
	for _, sport := range s.cfg.Sports {
		a, okA := snapA[sport]
		b, okB := snapB[sport]
		if !okA || !okB {
			continue
		}
		events := s.matcher.Match(a, b)
		s.metrics.Matched(sport, len(events))

		for _, ev := range events {
			opp, err := s.detector.Detect(ev)
			switch {
			case errors.Is(err, domain.ErrMatchingAmbiguous):
				s.metrics.Rejected("ambiguous")
				s.logger.DebugContext(ctx, "alignment rejected", slog.String("game", string(ev.GameID)), slog.String("error", err.Error()))
				continue
			case errors.Is(err, domain.ErrQualityRejected):
				s.metrics.Rejected("quality")
				s.logger.DebugContext(ctx, "quality rejected", slog.String("game", string(ev.GameID)), slog.String("error", err.Error()))
				continue
			case err != nil:
				s.logger.WarnContext(ctx, "detect failed", slog.String("game", string(ev.GameID)), slog.String("error", err.Error()))
				continue
			}
			s.publish(ctx, opp)
			opps = append(opps, opp)
		}
	}

	s.logger.DebugContext(ctx, "cycle complete",
		slog.Int("opportunities", len(opps)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return opps, nil
}

// fetchAll fetches every sport from one venue through a bounded pool. Sports
// whose fetch failed are absent from the result.
func (s *Scanner) fetchAll(ctx context.Context, f domain.MarketFetcher) map[domain.Sport][]domain.NormalizedMarket {
	var mu sync.Mutex
	out := make(map[domain.Sport][]domain.NormalizedMarket, len(s.cfg.Sports))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchWorkers)
	for _, sport := range s.cfg.Sports {
		g.Go(func() error {
			markets, err := f.FetchMarkets(gctx, sport)
			if err != nil {
				if gctx.Err() == nil {
					s.metrics.FetchError(f.Venue())
					s.logger.WarnContext(gctx, "fetch failed",
						slog.String("venue", string(f.Venue())),
						slog.String("sport", string(sport)),
						slog.String("error", err.Error()),
					)
				}
				return nil
			}
			markets = s.fresh(markets)
			s.metrics.Markets(f.Venue(), sport, len(markets))
			mu.Lock()
			out[sport] = markets
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fresh drops snapshots older than one already seen for the same
// instrument and records the newest timestamp of the rest.
func (s *Scanner) fresh(markets []domain.NormalizedMarket) []domain.NormalizedMarket {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := markets[:0:0]
	for _, m := range markets {
		k := instrumentKey{venue: m.Venue, id: m.InstrumentID}
		if last, ok := s.lastSeen[k]; ok && m.FetchedAt.Before(last.at) {
			s.logger.Debug("dropping regressed snapshot",
				slog.String("venue", string(m.Venue)),
				slog.String("instrument", m.InstrumentID),
			)
			continue
		}
		s.lastSeen[k] = seen{at: m.FetchedAt, cycle: s.cycle}
		kept = append(kept, m)
	}
	return kept
}

// prune forgets instruments that no fetch has returned for seenRetention
// cycles, typically games that have closed.
func (s *Scanner) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.lastSeen {
		if s.cycle-v.cycle >= seenRetention {
			delete(s.lastSeen, k)
		}
	}
}

func (s *Scanner) publish(ctx context.Context, opp domain.ArbitrageOpportunity) {
	if s.sink != nil {
		if err := s.sink.OnOpportunity(ctx, opp); err != nil {
			s.logger.WarnContext(ctx, "opportunity sink failed", slog.String("id", opp.ID), slog.String("error", err.Error()))
		}
	}
	if s.out == nil {
		return
	}
	select {
	case s.out <- opp:
	default:
		s.logger.WarnContext(ctx, "executor busy, opportunity dropped",
			slog.String("id", opp.ID),
			slog.String("game", string(opp.GameID)),
		)
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(time.Duration)              {}
func (nopMetrics) FetchError(domain.Venue)                 {}
func (nopMetrics) Markets(domain.Venue, domain.Sport, int) {}
func (nopMetrics) Matched(domain.Sport, int)               {}
func (nopMetrics) Rejected(string)                         {}
