package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperProvider settles trades instantly against the supplied price. It
// fails closed: a request without a usable price is rejected rather than
// filled at a made-up level.
type PaperProvider struct {
	mu          sync.RWMutex
	fills       []Outcome
	journal     *Journal
	slippageBps int
}

// NewPaperProvider creates a paper provider. slippageBps simulates fill
// slippage against the quoted price; journal may be nil.
func NewPaperProvider(slippageBps int, journal *Journal) *PaperProvider {
	return &PaperProvider{
		fills:       make([]Outcome, 0, 256),
		journal:     journal,
		slippageBps: slippageBps,
	}
}

// Name identifies the provider in logs and events.
func (p *PaperProvider) Name() string { return "paper" }

// Execute settles the request at the request price plus simulated slippage.
func (p *PaperProvider) Execute(ctx context.Context, req Request) Outcome {
	if req.SizeSOL <= 0 {
		return Outcome{
			Asset:   req.Asset,
			Action:  req.Action,
			Message: "invalid size",
		}
	}
	if req.Price <= 0 {
		// No price, no fill. The strategy layer resolves the price and
		// retries on a later tick.
		log.Printf("[paper] rejecting %s %s: no price available", req.Action, req.Asset)
		return Outcome{
			Asset:   req.Asset,
			Action:  req.Action,
			Message: "price unavailable",
		}
	}

	slip := req.SlippageBps
	if slip == 0 {
		slip = p.slippageBps
	}
	fillPrice := req.Price
	if slip > 0 {
		adj := fillPrice * float64(slip) / 10000
		if req.Action == ActionBuy {
			fillPrice += adj
		} else {
			fillPrice -= adj
		}
	}

	out := Outcome{
		Success:    true,
		OrderID:    "PAPER-" + uuid.NewString(),
		Asset:      req.Asset,
		Action:     req.Action,
		FilledSize: req.SizeSOL,
		Price:      fillPrice,
		Message:    fmt.Sprintf("paper filled at %.8f", fillPrice),
		FilledAt:   time.Now(),
	}

	p.mu.Lock()
	p.fills = append(p.fills, out)
	p.mu.Unlock()

	log.Printf("[paper] %s %s size=%.4f price=%.8f order=%s reason=%s",
		req.Action, req.Asset, req.SizeSOL, fillPrice, out.OrderID, req.Reason)

	if p.journal != nil {
		if err := p.journal.RecordFill(req, out); err != nil {
			log.Printf("[paper] journal error: %v", err)
		}
	}
	return out
}

// Fills returns a snapshot of all settled fills.
func (p *PaperProvider) Fills() []Outcome {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Outcome, len(p.fills))
	copy(cp, p.fills)
	return cp
}
