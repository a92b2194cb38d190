package domain

import "context"

// QuoteProvider fetches pool snapshots from a venue. Implementations must
// tolerate concurrent calls. A pair that does not exist on the venue returns
// ErrDataUnavailable; transient RPC problems return a ProviderError.
type QuoteProvider interface {
	GetQuote(ctx context.Context, pair TokenPair, venue string) (VenueQuote, error)
	Venues() []Venue
}

// FeeRateSource reports the network's current fee rate in gwei.
type FeeRateSource interface {
	CurrentRate(ctx context.Context) (float64, error)
}

// ReferencePriceSource supplies the reference-currency conversion price
// (e.g. ETH/USD) used to express gas costs and report values. Implementations
// refresh the value in the background; Price never blocks on I/O.
type ReferencePriceSource interface {
	Price() float64
}

// OpportunitySink receives evaluated opportunities. Accept is fire and
// forget from the scanner's point of view: a sink failure is logged by the
// caller and never aborts or delays the scan.
type OpportunitySink interface {
	Accept(ctx context.Context, opp Opportunity) error
}
