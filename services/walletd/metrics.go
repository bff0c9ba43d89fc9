package walletd

import "walletledger/observability"

// Metrics exposes Prometheus collectors for walletd instrumentation.
type Metrics = observability.WalletdMetrics

// NewMetrics returns a lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Walletd() }
