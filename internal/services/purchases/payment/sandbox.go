package payment

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// Sandbox source tokens with fixed outcomes.
const (
	SandboxDeclinedSource    = "cnon:card-nonce-declined"
	SandboxUnavailableSource = "cnon:unavailable"
)

// SandboxProcessor is a deterministic in-process processor for local runs.
type SandboxProcessor struct {
	seq atomic.Int64
}

// NewSandboxProcessor returns a sandbox processor.
func NewSandboxProcessor() *SandboxProcessor {
	return &SandboxProcessor{}
}

// Charge approves every source except the reserved decline and outage tokens.
func (p *SandboxProcessor) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, Unavailable(err)
	}
	switch strings.TrimSpace(req.SourceToken) {
	case "":
		return ChargeResult{}, NewDeclined("payment source is required")
	case SandboxDeclinedSource:
		return ChargeResult{}, NewDeclined("Card declined.")
	case SandboxUnavailableSource:
		return ChargeResult{}, Unavailable(fmt.Errorf("sandbox outage"))
	}
	if req.AmountMinor <= 0 {
		return ChargeResult{}, fmt.Errorf("charge amount must be greater than zero")
	}
	n := p.seq.Add(1)
	return ChargeResult{PaymentID: fmt.Sprintf("sandbox_%d", n), Status: "COMPLETED"}, nil
}

var _ Processor = (*SandboxProcessor)(nil)
