package types

// GasInfo is the cost of one backend call.
type GasInfo struct {
	// Cost is charged against the instance's gas left, like instructions.
	Cost uint64
	// ExternallyUsed was already metered by the host and is reported separately.
	ExternallyUsed uint64
}

// GasInfoWithCost creates gas info for internally charged work.
func GasInfoWithCost(cost uint64) GasInfo {
	return GasInfo{Cost: cost}
}

// GasInfoWithExternallyUsed creates gas info for host-metered work.
func GasInfoWithExternallyUsed(amount uint64) GasInfo {
	return GasInfo{ExternallyUsed: amount}
}

// Free returns gas info with no cost.
func Free() GasInfo {
	return GasInfo{}
}

// Add sums two gas infos.
func (g GasInfo) Add(o GasInfo) GasInfo {
	return GasInfo{
		Cost:           g.Cost + o.Cost,
		ExternallyUsed: g.ExternallyUsed + o.ExternallyUsed,
	}
}

// GasReport summarizes gas usage of one entry point call.
// UsedExternally + UsedInternally + Remaining never exceeds Limit.
type GasReport struct {
	Limit          uint64 `json:"limit"`
	Remaining      uint64 `json:"remaining"`
	UsedExternally uint64 `json:"used_externally"`
	UsedInternally uint64 `json:"used_internally"`
}

// Total returns all gas consumed by the call.
func (r GasReport) Total() uint64 {
	return r.UsedExternally + r.UsedInternally
}

// GasMeter exposes the gas consumed so far by a host-side meter.
type GasMeter interface {
	GasConsumed() uint64
}
