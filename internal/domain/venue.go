package domain

// Venue describes one UniswapV2-compatible exchange the scanner quotes
// against. FeeRate is the pool swap fee as a fraction, e.g. 0.003.
type Venue struct {
	Name    string
	Factory string
	Router  string
	FeeRate float64
}
