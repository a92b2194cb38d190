package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quellen-dev/dexscan/internal/domain"
	"github.com/quellen-dev/dexscan/internal/discovery"
)

// PairService fronts the discovery registry: it serves the active pair set
// and runs on-demand refreshes, fanning completions out to the audit log,
// bus, and notifier.
type PairService struct {
	registry *discovery.Registry
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

// PairDeps bundles the collaborators for NewPairService. Registry is
// required; the rest are optional.
type PairDeps struct {
	Registry *discovery.Registry
	Audit    domain.AuditStore
	Bus      domain.SignalBus
	Notifier Notifier
	Logger   *slog.Logger
}

// NewPairService creates a PairService.
func NewPairService(deps PairDeps) *PairService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PairService{
		registry: deps.Registry,
		audit:    deps.Audit,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		logger:   logger.With(slog.String("component", "pair_service")),
	}
}

// Active returns the scannable pair set, refreshing the registry first if it
// has gone stale.
func (s *PairService) Active(ctx context.Context) ([]domain.DiscoveredPair, error) {
	pairs, err := s.registry.ActivePairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: active pairs: %w", err)
	}
	return pairs, nil
}

// Snapshot returns the current registry contents without side effects.
func (s *PairService) Snapshot() []domain.DiscoveredPair {
	return s.registry.Snapshot()
}

// Refresh runs a discovery pass and records the outcome. With force set the
// refresh runs even if the current set is still fresh. A refresh already in
// flight elsewhere surfaces as domain.ErrLockHeld from the registry and is
// returned as-is so callers can report "busy" rather than a failure.
func (s *PairService) Refresh(ctx context.Context, force bool) ([]domain.DiscoveredPair, error) {
	pairs, err := s.registry.Refresh(ctx, force)
	if err != nil {
		return nil, fmt.Errorf("service: refresh pairs: %w", err)
	}

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, domain.EventDiscoveryCompleted, map[string]any{
			"pairs": len(pairs),
			"force": force,
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "audit discovery failed",
				slog.String("error", auditErr.Error()))
		}
	}

	s.publish(ctx, pairs)

	if s.notifier != nil {
		s.notifier.NotifyDiscovery(ctx, pairs)
	}

	s.logger.InfoContext(ctx, "discovery refresh recorded", slog.Int("pairs", len(pairs)))
	return pairs, nil
}

func (s *PairService) publish(ctx context.Context, pairs []domain.DiscoveredPair) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.NewDiscoveryEvent(pairs, s.registry.LastRun()))
	if err != nil {
		s.logger.WarnContext(ctx, "marshal discovery event failed",
			slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelDiscovery, payload); err != nil {
		s.logger.WarnContext(ctx, "publish discovery event failed",
			slog.String("error", err.Error()))
	}
}

// State reports the registry lifecycle state.
func (s *PairService) State() discovery.State {
	return s.registry.State()
}
