package execution

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"soltrader/internal/model"
	"soltrader/internal/venue"
	"soltrader/internal/wallet"

	"github.com/google/uuid"
)

// SOLMint is the wrapped-SOL mint used as the quote leg of every route.
const SOLMint = "So11111111111111111111111111111111111111112"

// Quoter routes swaps and assembles swap transactions.
type Quoter interface {
	GetQuote(ctx context.Context, req venue.QuoteRequest) (*venue.Quote, error)
	BuildSwapTransaction(ctx context.Context, quote *venue.Quote, userPublicKey string) (string, error)
}

// BundleSubmitter submits signed transaction bundles.
type BundleSubmitter interface {
	SubmitBundle(ctx context.Context, signedTxs []string) (string, error)
}

// ChainReader reads chain state needed for transaction assembly.
type ChainReader interface {
	GetLatestBlockhash(ctx context.Context) (string, error)
}

// RealProvider executes trades on-chain: Jupiter quote, Jupiter swap
// assembly, local signing, then atomic submission through a Jito bundle
// with a separately signed tip transaction appended last.
type RealProvider struct {
	jupiter Quoter
	jito    BundleSubmitter
	chain   ChainReader
	signer  wallet.Signer
	journal *Journal

	// Tier returns the current priority tier; read per trade so settings
	// flips apply without rebuilding the provider.
	Tier func() model.PriorityTier
}

// NewRealProvider wires the live execution path. journal may be nil.
func NewRealProvider(jupiter Quoter, jito BundleSubmitter, chain ChainReader, signer wallet.Signer, journal *Journal) *RealProvider {
	return &RealProvider{
		jupiter: jupiter,
		jito:    jito,
		chain:   chain,
		signer:  signer,
		journal: journal,
		Tier:    func() model.PriorityTier { return model.PriorityStandard },
	}
}

// Name identifies the provider in logs and events.
func (r *RealProvider) Name() string { return "real" }

// Execute runs the full live pipeline. Every network step retries with
// backoff; any exhausted step yields a failed outcome, never a partial
// submission.
func (r *RealProvider) Execute(ctx context.Context, req Request) Outcome {
	fail := func(msg string) Outcome {
		out := Outcome{Asset: req.Asset, Action: req.Action, Message: msg, FilledAt: time.Now()}
		if r.journal != nil {
			if err := r.journal.RecordFill(req, out); err != nil {
				log.Printf("[real] journal error: %v", err)
			}
		}
		return out
	}

	if req.Mint == "" {
		return fail("no mint for asset " + req.Asset)
	}

	quoteReq, err := r.quoteRequest(req)
	if err != nil {
		return fail(err.Error())
	}

	var quote *venue.Quote
	err = withRetry(ctx, "quote", retryAttempts, retryBase, func() error {
		var qerr error
		quote, qerr = r.jupiter.GetQuote(ctx, quoteReq)
		return qerr
	})
	if err != nil {
		return fail(err.Error())
	}

	var swapTx string
	err = withRetry(ctx, "swap build", retryAttempts, retryBase, func() error {
		var serr error
		swapTx, serr = r.jupiter.BuildSwapTransaction(ctx, quote, r.signer.PublicKey())
		return serr
	})
	if err != nil {
		return fail(err.Error())
	}

	signedSwap, err := signTransaction(r.signer, swapTx)
	if err != nil {
		return fail(fmt.Sprintf("sign swap: %v", err))
	}

	var blockhash string
	err = withRetry(ctx, "blockhash", retryAttempts, retryBase, func() error {
		var berr error
		blockhash, berr = r.chain.GetLatestBlockhash(ctx)
		return berr
	})
	if err != nil {
		return fail(err.Error())
	}

	tip := venue.TipLamports(r.Tier())
	signedTip, err := buildSignedTip(r.signer, blockhash, venue.TipAccount(), tip)
	if err != nil {
		return fail(fmt.Sprintf("sign tip: %v", err))
	}

	// Tip goes last so the engine only lands it when the swap lands.
	bundle := []string{signedSwap, signedTip}

	var bundleID string
	err = withRetry(ctx, "bundle submit", retryAttempts, retryBase, func() error {
		var berr error
		bundleID, berr = r.jito.SubmitBundle(ctx, bundle)
		return berr
	})
	if err != nil {
		return fail(err.Error())
	}

	outAmount, _ := quote.OutAmountLamports()
	out := Outcome{
		Success:    true,
		OrderID:    "LIVE-" + uuid.NewString(),
		BundleID:   bundleID,
		Asset:      req.Asset,
		Action:     req.Action,
		FilledSize: req.SizeSOL,
		Price:      req.Price,
		Message:    fmt.Sprintf("bundle %s submitted, out=%d tip=%d", bundleID, outAmount, tip),
		FilledAt:   time.Now(),
	}

	log.Printf("[real] %s %s size=%.4f bundle=%s tip=%d reason=%s",
		req.Action, req.Asset, req.SizeSOL, bundleID, tip, req.Reason)

	if r.journal != nil {
		if err := r.journal.RecordFill(req, out); err != nil {
			log.Printf("[real] journal error: %v", err)
		}
	}
	return out
}

// quoteRequest maps a trade request onto a Jupiter route. Buys spend SOL
// for the target mint; sells route the target mint back to SOL.
func (r *RealProvider) quoteRequest(req Request) (venue.QuoteRequest, error) {
	amount := uint64(req.SizeSOL * float64(model.LamportsPerSOL))
	if amount == 0 {
		return venue.QuoteRequest{}, fmt.Errorf("zero amount for %s", req.Asset)
	}
	q := venue.QuoteRequest{SlippageBps: req.SlippageBps, AmountLamports: amount}
	switch req.Action {
	case ActionBuy:
		q.InputMint = SOLMint
		q.OutputMint = req.Mint
	case ActionSell:
		q.InputMint = req.Mint
		q.OutputMint = SOLMint
	default:
		return venue.QuoteRequest{}, fmt.Errorf("unknown action %q", req.Action)
	}
	return q, nil
}

// signTransaction decodes a base64 unsigned transaction, signs it, and
// re-encodes it with the signature prepended.
func signTransaction(signer wallet.Signer, txBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("decode tx: %w", err)
	}
	sig, err := signer.Sign(raw)
	if err != nil {
		return "", err
	}
	signed := make([]byte, 0, len(sig)+len(raw))
	signed = append(signed, sig...)
	signed = append(signed, raw...)
	return base64.StdEncoding.EncodeToString(signed), nil
}

// buildSignedTip assembles and signs the tip transfer for a bundle.
func buildSignedTip(signer wallet.Signer, blockhash, tipAccount string, lamports uint64) (string, error) {
	msg := fmt.Sprintf("tip|%s|%s|%s|%d", blockhash, signer.PublicKey(), tipAccount, lamports)
	return signTransaction(signer, base64.StdEncoding.EncodeToString([]byte(msg)))
}
