// Package service wires the scan pipeline's results into persistence,
// the signal bus, and operator notifications. Services treat the store as
// the source of truth; bus and notification failures are logged and never
// propagate back into the scan path.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// Notifier pushes human-facing alerts. Implementations dedupe and apply
// their own thresholds; calls must not block for long.
type Notifier interface {
	NotifyOpportunity(ctx context.Context, opp domain.Opportunity)
	NotifyScan(ctx context.Context, report domain.ScanReport)
	NotifyDiscovery(ctx context.Context, pairs []domain.DiscoveredPair)
	NotifyError(ctx context.Context, component string, err error)
}

// OpportunityService records evaluated opportunities. It implements
// domain.OpportunitySink for the scanner and serves opportunity queries for
// the API.
type OpportunityService struct {
	store    domain.OpportunityStore
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

// OpportunityDeps bundles the collaborators for NewOpportunityService.
// Store, Bus, and Notifier are each optional; a nil dependency disables that
// output.
type OpportunityDeps struct {
	Store    domain.OpportunityStore
	Bus      domain.SignalBus
	Notifier Notifier
	Logger   *slog.Logger
}

// NewOpportunityService creates an OpportunityService.
func NewOpportunityService(deps OpportunityDeps) *OpportunityService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpportunityService{
		store:    deps.Store,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		logger:   logger.With(slog.String("component", "opportunity_service")),
	}
}

var _ domain.OpportunitySink = (*OpportunityService)(nil)

// Accept persists the opportunity, publishes it on the bus, and hands it to
// the notifier. The store write is the only failure that propagates; the
// scanner logs it and moves on.
func (s *OpportunityService) Accept(ctx context.Context, opp domain.Opportunity) error {
	if s.store != nil {
		if err := s.store.Insert(ctx, opp); err != nil {
			return fmt.Errorf("service: insert opportunity %s: %w", opp.ID, err)
		}
	}

	s.publish(ctx, opp)

	if s.notifier != nil {
		s.notifier.NotifyOpportunity(ctx, opp)
	}

	s.logger.InfoContext(ctx, "opportunity recorded",
		slog.String("id", opp.ID),
		slog.String("pair", opp.Pair.Name()),
		slog.String("buy", opp.BuyVenue),
		slog.String("sell", opp.SellVenue),
		slog.Float64("net_profit", opp.NetProfit),
		slog.Float64("confidence", opp.Confidence),
	)
	return nil
}

func (s *OpportunityService) publish(ctx context.Context, opp domain.Opportunity) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.NewOpportunityEvent(opp))
	if err != nil {
		s.logger.WarnContext(ctx, "marshal opportunity event failed",
			slog.String("id", opp.ID), slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelOpportunities, payload); err != nil {
		s.logger.WarnContext(ctx, "publish opportunity event failed",
			slog.String("id", opp.ID), slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, domain.ChannelOpportunities, payload); err != nil {
		s.logger.WarnContext(ctx, "append opportunity stream failed",
			slog.String("id", opp.ID), slog.String("error", err.Error()))
	}
}

// Recent returns the latest persisted opportunities.
func (s *OpportunityService) Recent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if s.store == nil {
		return nil, domain.ErrDataUnavailable
	}
	opps, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service: list recent opportunities: %w", err)
	}
	return opps, nil
}

// ByID returns a single persisted opportunity.
func (s *OpportunityService) ByID(ctx context.Context, id string) (domain.Opportunity, error) {
	if s.store == nil {
		return domain.Opportunity{}, domain.ErrDataUnavailable
	}
	opp, err := s.store.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Opportunity{}, err
		}
		return domain.Opportunity{}, fmt.Errorf("service: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// ByPair returns opportunities for one pair key with pagination.
func (s *OpportunityService) ByPair(ctx context.Context, pairKey string, opts domain.ListOpts) ([]domain.Opportunity, error) {
	if s.store == nil {
		return nil, domain.ErrDataUnavailable
	}
	opps, err := s.store.ListByPair(ctx, pairKey, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list opportunities for %s: %w", pairKey, err)
	}
	return opps, nil
}
