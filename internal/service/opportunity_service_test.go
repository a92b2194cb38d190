package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quellen-dev/dexscan/internal/domain"
)

func TestOpportunityService_AcceptRecordsEverywhere(t *testing.T) {
	store := &memOppStore{}
	bus := newMemBus()
	notif := &memNotifier{}
	svc := NewOpportunityService(OpportunityDeps{
		Store: store, Bus: bus, Notifier: notif, Logger: discardLogger(),
	})

	opp := sampleOpportunity("opp-1")
	require.NoError(t, svc.Accept(context.Background(), opp))

	require.Len(t, store.opps, 1)
	assert.Equal(t, "opp-1", store.opps[0].ID)

	pubs := bus.published(domain.ChannelOpportunities)
	require.Len(t, pubs, 1)
	var evt domain.OpportunityEvent
	require.NoError(t, json.Unmarshal(pubs[0], &evt))
	assert.Equal(t, domain.EventOpportunityFound, evt.Event)
	assert.Equal(t, "WETH/USDC", evt.Pair)
	assert.Equal(t, opp.Pair.Key(), evt.PairKey)
	assert.Equal(t, "uniswap", evt.BuyVenue)
	assert.Equal(t, "sushiswap", evt.SellVenue)
	assert.InDelta(t, 0.43, evt.NetProfit, 1e-9)
	assert.InDelta(t, 4.3, evt.ProfitPct, 1e-9)

	assert.Len(t, bus.streamed(domain.ChannelOpportunities), 1)

	assert.Equal(t, 1, notif.oppCalls)
	assert.Equal(t, "opp-1", notif.lastOpp.ID)
}

func TestOpportunityService_AcceptStoreFailureStopsFanout(t *testing.T) {
	store := &memOppStore{failInsert: errors.New("connection refused")}
	bus := newMemBus()
	notif := &memNotifier{}
	svc := NewOpportunityService(OpportunityDeps{
		Store: store, Bus: bus, Notifier: notif, Logger: discardLogger(),
	})

	err := svc.Accept(context.Background(), sampleOpportunity("opp-1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert opportunity")
	assert.Empty(t, bus.published(domain.ChannelOpportunities))
	assert.Zero(t, notif.oppCalls)
}

func TestOpportunityService_AcceptBusFailureIsSoft(t *testing.T) {
	store := &memOppStore{}
	bus := newMemBus()
	bus.failPub = errors.New("redis down")
	notif := &memNotifier{}
	svc := NewOpportunityService(OpportunityDeps{
		Store: store, Bus: bus, Notifier: notif, Logger: discardLogger(),
	})

	require.NoError(t, svc.Accept(context.Background(), sampleOpportunity("opp-1")))

	assert.Len(t, store.opps, 1)
	assert.Equal(t, 1, notif.oppCalls)
}

func TestOpportunityService_AcceptWithNoDeps(t *testing.T) {
	svc := NewOpportunityService(OpportunityDeps{Logger: discardLogger()})

	assert.NoError(t, svc.Accept(context.Background(), sampleOpportunity("opp-1")))
}

func TestOpportunityService_Queries(t *testing.T) {
	store := &memOppStore{}
	svc := NewOpportunityService(OpportunityDeps{Store: store, Logger: discardLogger()})
	ctx := context.Background()

	first := sampleOpportunity("opp-1")
	second := sampleOpportunity("opp-2")
	require.NoError(t, svc.Accept(ctx, first))
	require.NoError(t, svc.Accept(ctx, second))

	recent, err := svc.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "opp-2", recent[0].ID)

	got, err := svc.ByID(ctx, "opp-1")
	require.NoError(t, err)
	assert.Equal(t, first.NetProfit, got.NetProfit)

	_, err = svc.ByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	byPair, err := svc.ByPair(ctx, first.Pair.Key(), domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, byPair, 2)
}

func TestOpportunityService_QueriesWithoutStore(t *testing.T) {
	svc := NewOpportunityService(OpportunityDeps{Logger: discardLogger()})
	ctx := context.Background()

	_, err := svc.Recent(ctx, 10)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	_, err = svc.ByID(ctx, "opp-1")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	_, err = svc.ByPair(ctx, "a:b", domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}
