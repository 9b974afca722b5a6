package orderpool

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/angstrom-node/angstrom/types"
)

type fakeState struct {
	block      uint64
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]*uint256.Int
	usedNonce  map[uint64]bool
}

func newFakeState() *fakeState {
	return &fakeState{
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]*uint256.Int),
		usedNonce:  make(map[uint64]bool),
	}
}

func (s *fakeState) BalanceOf(_ context.Context, _, owner common.Address) (*uint256.Int, error) {
	if b, ok := s.balances[owner]; ok {
		return b, nil
	}
	return new(uint256.Int), nil
}

func (s *fakeState) AllowanceOf(_ context.Context, _, owner, _ common.Address) (*uint256.Int, error) {
	if a, ok := s.allowances[owner]; ok {
		return a, nil
	}
	return new(uint256.Int), nil
}

func (s *fakeState) NonceUsed(_ context.Context, _ common.Address, nonce uint64) (bool, error) {
	return s.usedNonce[nonce], nil
}

func (s *fakeState) CurrentBlock() uint64 { return s.block }

type fakePools struct {
	tokenIn, tokenOut common.Address
	known             bool
}

func (p *fakePools) Pool(_ types.PoolID) (common.Address, common.Address, bool) {
	return p.tokenIn, p.tokenOut, p.known
}

// signedOrder builds an order signed by a fresh key under domainSeparator,
// matching OrderValidator.eip712Digest (keccak(domainSeparator || hash)).
func signedOrder(t *testing.T, domainSeparator common.Hash, mutate func(o *types.Order)) (*types.Order, *fakeState) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	tokenIn := common.HexToAddress("0x1")
	tokenOut := common.HexToAddress("0x2")
	pool := common.HexToHash("0xaa")

	o := &types.Order{
		Kind:         types.KindStandingExact,
		Signer:       signer,
		Pool:         pool,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     uint256.NewInt(100),
		MinAmountOut: uint256.NewInt(1),
		Deadline:     1_000,
		Hash:         common.HexToHash("0xdeadbeef"),
	}
	if mutate != nil {
		mutate(o)
	}

	digest := crypto.Keccak256Hash(domainSeparator[:], o.Hash[:])
	sig, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)
	o.Signature = sig

	st := newFakeState()
	st.balances[signer] = uint256.NewInt(1_000)
	st.allowances[signer] = uint256.NewInt(1_000)
	return o, st
}

func TestValidateAcceptsValidStandingOrder(t *testing.T) {
	domainSeparator := common.HexToHash("0xd0")
	o, st := signedOrder(t, domainSeparator, nil)

	pools := &fakePools{tokenIn: o.TokenIn, tokenOut: o.TokenOut, known: true}
	v := NewOrderValidator(st, pools, common.Address{}, domainSeparator)

	res := v.Validate(context.Background(), o, st.CurrentBlock())
	require.Equal(t, ResultValid, res.Kind)
	require.Equal(t, types.StateValid, o.State)
}

func TestValidateRejectsBadSignature(t *testing.T) {
	domainSeparator := common.HexToHash("0xd0")
	o, st := signedOrder(t, domainSeparator, nil)
	o.Signature[0] ^= 0xff // corrupt the signature

	pools := &fakePools{tokenIn: o.TokenIn, tokenOut: o.TokenOut, known: true}
	v := NewOrderValidator(st, pools, common.Address{}, domainSeparator)

	res := v.Validate(context.Background(), o, st.CurrentBlock())
	require.Equal(t, ResultInvalid, res.Kind)
	require.ErrorIs(t, res.Err, ErrInvalidSignature)
}

func TestValidateRejectsUnknownPool(t *testing.T) {
	domainSeparator := common.HexToHash("0xd0")
	o, st := signedOrder(t, domainSeparator, nil)

	pools := &fakePools{known: false}
	v := NewOrderValidator(st, pools, common.Address{}, domainSeparator)

	res := v.Validate(context.Background(), o, st.CurrentBlock())
	require.Equal(t, ResultInvalid, res.Kind)
	require.ErrorIs(t, res.Err, ErrUnknownPool)
}

func TestValidateRejectsInsufficientBalance(t *testing.T) {
	domainSeparator := common.HexToHash("0xd0")
	o, st := signedOrder(t, domainSeparator, nil)
	st.balances[o.Signer] = uint256.NewInt(1) // less than AmountIn

	pools := &fakePools{tokenIn: o.TokenIn, tokenOut: o.TokenOut, known: true}
	v := NewOrderValidator(st, pools, common.Address{}, domainSeparator)

	res := v.Validate(context.Background(), o, st.CurrentBlock())
	require.Equal(t, ResultInvalid, res.Kind)
	require.ErrorIs(t, res.Err, ErrInsufficientBalance)
}

func TestValidateRejectsRespendNonceReuse(t *testing.T) {
	domainSeparator := common.HexToHash("0xd0")
	o, st := signedOrder(t, domainSeparator, func(o *types.Order) {
		o.Respend = types.RespendGuard{HasNonce: true, Nonce: 7}
	})
	st.usedNonce[7] = true

	pools := &fakePools{tokenIn: o.TokenIn, tokenOut: o.TokenOut, known: true}
	v := NewOrderValidator(st, pools, common.Address{}, domainSeparator)

	res := v.Validate(context.Background(), o, st.CurrentBlock())
	require.Equal(t, ResultInvalid, res.Kind)
	require.ErrorIs(t, res.Err, ErrRespendConflict)
}

func TestValidateTransitionedWhenStale(t *testing.T) {
	domainSeparator := common.HexToHash("0xd0")
	o, st := signedOrder(t, domainSeparator, nil)
	st.block = 50

	pools := &fakePools{tokenIn: o.TokenIn, tokenOut: o.TokenOut, known: true}
	v := NewOrderValidator(st, pools, common.Address{}, domainSeparator)

	res := v.Validate(context.Background(), o, 10) // stagedBlock behind current
	require.Equal(t, ResultTransitioned, res.Kind)
}

func TestValidateParksFlashOrderBeforeValidBlock(t *testing.T) {
	domainSeparator := common.HexToHash("0xd0")
	o, st := signedOrder(t, domainSeparator, func(o *types.Order) {
		o.Kind = types.KindFlashExact
		o.ValidBlock = 20
	})
	st.block = 5

	pools := &fakePools{tokenIn: o.TokenIn, tokenOut: o.TokenOut, known: true}
	v := NewOrderValidator(st, pools, common.Address{}, domainSeparator)

	res := v.Validate(context.Background(), o, st.CurrentBlock())
	require.Equal(t, ResultValid, res.Kind)
	require.Equal(t, types.StateParked, o.State)
}

func TestValidateRejectsExpiredFlashOrder(t *testing.T) {
	domainSeparator := common.HexToHash("0xd0")
	o, st := signedOrder(t, domainSeparator, func(o *types.Order) {
		o.Kind = types.KindFlashExact
		o.ValidBlock = 4
	})
	st.block = 5

	pools := &fakePools{tokenIn: o.TokenIn, tokenOut: o.TokenOut, known: true}
	v := NewOrderValidator(st, pools, common.Address{}, domainSeparator)

	res := v.Validate(context.Background(), o, st.CurrentBlock())
	require.Equal(t, ResultInvalid, res.Kind)
	require.ErrorIs(t, res.Err, ErrOrderExpired)
}

func TestTokenPriceGenerator(t *testing.T) {
	g := NewTokenPriceGenerator()
	token := common.HexToAddress("0x9")
	_, ok := g.USDPrice(token)
	require.False(t, ok)

	g.Update(token, types.RayFromUint64(3))
	p, ok := g.USDPrice(token)
	require.True(t, ok)
	require.True(t, p.Equal(types.RayFromUint64(3)))
}
