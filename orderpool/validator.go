package orderpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	alog "github.com/angstrom-node/angstrom/log"
	"github.com/angstrom-node/angstrom/types"
)

// Error kinds per spec.md section 7.
var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRespendConflict   = errors.New("respend conflict")
	ErrUnknownPool       = errors.New("unknown pool")
	ErrOrderExpired      = errors.New("order expired")
)

// ResultKind is the outcome of validating one order (spec.md section 4.2:
// "return exactly one OrderValidationResults ∈ {Valid(order), Invalid(reason),
// TransitionedToBlock}").
type ResultKind uint8

const (
	ResultValid ResultKind = iota
	ResultInvalid
	ResultTransitioned
)

// ValidationResult is the single response the validator ever returns for a
// request.
type ValidationResult struct {
	Kind  ResultKind
	Order *types.Order
	Err   error
}

// StateReader is the minimal view onto EVM state the validator needs:
// balances, allowances and respend-avoidance bookkeeping. Concrete
// implementations are a clone-on-handle over the embedding node's state
// database (spec.md section 5: "the validator-state DB is a clone-on-handle;
// concurrent readers never mutate"), which is an external collaborator.
type StateReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*uint256.Int, error)
	AllowanceOf(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error)
	NonceUsed(ctx context.Context, owner common.Address, nonce uint64) (bool, error)
	CurrentBlock() uint64
}

// PoolResolver answers whether a pool exists and what token pair it trades.
type PoolResolver interface {
	Pool(id types.PoolID) (tokenIn, tokenOut common.Address, ok bool)
}

// TokenPriceGenerator listens to canonical-state updates and maintains a
// token->USD conversion table for gas-to-quote conversion (spec.md section
// 4.2). It is a small, self-contained cache the validator owns.
type TokenPriceGenerator struct {
	mu     sync.RWMutex
	usdRay map[common.Address]types.Ray
}

func NewTokenPriceGenerator() *TokenPriceGenerator {
	return &TokenPriceGenerator{usdRay: make(map[common.Address]types.Ray)}
}

// Update installs a new token -> USD (Ray) price, called as canonical state
// advances.
func (g *TokenPriceGenerator) Update(token common.Address, priceUSD types.Ray) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usdRay[token] = priceUSD
}

// USDPrice returns the last known USD price for token, if any.
func (g *TokenPriceGenerator) USDPrice(token common.Address) (types.Ray, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.usdRay[token]
	return p, ok
}

// SettlementContract is the address approvals must be granted to.
type SettlementContract = common.Address

// OrderValidator implements the five-step (plus TransitionedToBlock) check
// from spec.md section 4.2.
type OrderValidator struct {
	log            alog.Logger
	state          StateReader
	pools          PoolResolver
	settlement     SettlementContract
	domainSeparator common.Hash
	prices         *TokenPriceGenerator
}

func NewOrderValidator(state StateReader, pools PoolResolver, settlement SettlementContract, domainSeparator common.Hash) *OrderValidator {
	return &OrderValidator{
		log:             alog.New("orderpool.validator"),
		state:           state,
		pools:           pools,
		settlement:      settlement,
		domainSeparator: domainSeparator,
		prices:          NewTokenPriceGenerator(),
	}
}

// Prices exposes the validator's token-price cache.
func (v *OrderValidator) Prices() *TokenPriceGenerator { return v.prices }

// eip712Digest recovers the signer's address from the order's EIP-712 hash
// under the configured domain separator. Cryptographic EIP-712 structural
// validation itself is delegated to the signer module (spec.md section 1
// Non-goals); this computes the recovery digest the signer module defines.
func (v *OrderValidator) eip712Digest(o *types.Order) common.Hash {
	return crypto.Keccak256Hash(v.domainSeparator[:], o.Hash[:])
}

// Validate runs the five-step pipeline of spec.md section 4.2 and returns
// exactly one ValidationResult; it never panics on a malformed order —
// every failure path returns ResultInvalid with a wrapped error, per
// spec.md section 7 ("Per-order errors ... never affect other orders").
func (v *OrderValidator) Validate(ctx context.Context, o *types.Order, stagedBlock uint64) ValidationResult {
	// Step 6 first: if the chain has moved past our staged block, tell the
	// caller to resubmit rather than spend work validating a stale view.
	if v.state.CurrentBlock() > stagedBlock {
		return ValidationResult{Kind: ResultTransitioned, Order: o}
	}

	// Step 1: recover signer from EIP-712 digest.
	digest := v.eip712Digest(o)
	pub, err := crypto.SigToPub(digest[:], o.Signature)
	if err != nil {
		return invalid(o, fmt.Errorf("%w: %v", ErrInvalidSignature, err))
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != o.Signer {
		return invalid(o, ErrInvalidSignature)
	}

	// Step 4: resolve the pool and confirm the token pair before touching
	// balances, mirroring spec.md's ordering ("Looks up the pool ...").
	tokenIn, tokenOut, ok := v.pools.Pool(o.Pool)
	if !ok || tokenIn != o.TokenIn || tokenOut != o.TokenOut {
		return invalid(o, ErrUnknownPool)
	}

	// Step 2: balance and allowance.
	balance, err := v.state.BalanceOf(ctx, o.TokenIn, o.Signer)
	if err != nil {
		return invalid(o, fmt.Errorf("%w: %v", ErrInsufficientBalance, err))
	}
	if balance.Cmp(o.AmountIn) < 0 {
		return invalid(o, ErrInsufficientBalance)
	}
	allowance, err := v.state.AllowanceOf(ctx, o.TokenIn, o.Signer, v.settlement)
	if err != nil {
		return invalid(o, fmt.Errorf("%w: %v", ErrInsufficientBalance, err))
	}
	if allowance.Cmp(o.AmountIn) < 0 {
		return invalid(o, ErrInsufficientBalance)
	}

	// Step 3: respend-avoidance.
	if o.Respend.HasNonce {
		used, err := v.state.NonceUsed(ctx, o.Signer, o.Respend.Nonce)
		if err != nil {
			return invalid(o, fmt.Errorf("%w: %v", ErrRespendConflict, err))
		}
		if used {
			return invalid(o, ErrRespendConflict)
		}
	} else if o.Respend.HasBlock && o.Respend.Block != v.state.CurrentBlock() {
		return invalid(o, ErrRespendConflict)
	}

	// Deadline / valid-block expiry check.
	current := v.state.CurrentBlock()
	if o.Kind == types.KindStandingExact || o.Kind == types.KindStandingPartial {
		if o.Deadline != 0 && o.Deadline <= current {
			return invalid(o, ErrOrderExpired)
		}
	} else {
		if o.ValidBlock != current {
			// Not yet valid: park it rather than reject outright, unless
			// it has already passed.
			if o.ValidBlock < current {
				return invalid(o, ErrOrderExpired)
			}
			o.State = types.StateParked
			return ValidationResult{Kind: ResultValid, Order: o}
		}
	}

	// Step 5: normalize the limit price into the pool's Ray ladder. The
	// caller's MinPrice is assumed to already be Ray-scaled; this is the
	// hook point where a pool-specific tick ladder would snap it.
	o.State = types.StateValid
	return ValidationResult{Kind: ResultValid, Order: o}
}

func invalid(o *types.Order, err error) ValidationResult {
	o.State = types.StateInvalid
	return ValidationResult{Kind: ResultInvalid, Order: o, Err: err}
}
