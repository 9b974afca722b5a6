package matching

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/angstrom-node/angstrom/amm"
	"github.com/angstrom-node/angstrom/metrics"
	"github.com/angstrom-node/angstrom/orderpool"
	"github.com/angstrom-node/angstrom/types"
)

// ErrAMMMathOverflow is returned when AMM price movement would overflow,
// per spec.md section 7.
var ErrAMMMathOverflow = errors.New("amm math overflow")

// EndReason is why run_match stopped (spec.md section 4.4 step 2).
type EndReason int

const (
	EndNone EndReason = iota
	EndNoMoreBids
	EndNoMoreAsks
	EndBothSidesAMM
	EndNoLongerCross
	EndZeroQuantity
	EndErrorEncountered
)

func (r EndReason) String() string {
	switch r {
	case EndNoMoreBids:
		return "NoMoreBids"
	case EndNoMoreAsks:
		return "NoMoreAsks"
	case EndBothSidesAMM:
		return "BothSidesAMM"
	case EndNoLongerCross:
		return "NoLongerCross"
	case EndZeroQuantity:
		return "ZeroQuantity"
	case EndErrorEncountered:
		return "ErrorEncountered"
	default:
		return "None"
	}
}

// orderOutcome is the per-book-order-index fill state the matcher tracks,
// distinct from types.State: it describes this round's progress on the
// order, not its lifecycle.
type orderOutcome struct {
	filled  bool
	partial bool
	matched *uint256.Int // cumulative matched amount if partial
}

func unfilled() orderOutcome { return orderOutcome{} }

// Results accumulates the matcher's running solution as single_match
// iterates (spec.md section 4.4 step 8).
type Results struct {
	TotalVolume    *uint256.Int
	PartialBidVol  *uint256.Int
	PartialAskVol  *uint256.Int
	Price          types.Ray
	AMMVolume      *uint256.Int
	AMMFinalPrice  *amm.PoolPrice
	AMMNetBid      bool // side of the most recent AMM fill: true = bid (token0 bought from the pool)
}

func newResults() Results {
	return Results{
		TotalVolume:   new(uint256.Int),
		PartialBidVol: new(uint256.Int),
		PartialAskVol: new(uint256.Int),
		AMMVolume:     new(uint256.Int),
	}
}

func (r Results) clone() Results {
	out := r
	out.TotalVolume = new(uint256.Int).Set(r.TotalVolume)
	out.PartialBidVol = new(uint256.Int).Set(r.PartialBidVol)
	out.PartialAskVol = new(uint256.Int).Set(r.PartialAskVol)
	out.AMMVolume = new(uint256.Int).Set(r.AMMVolume)
	if r.AMMFinalPrice != nil {
		p := *r.AMMFinalPrice
		out.AMMFinalPrice = &p
	}
	return out
}

// checkpoint is a deep copy of the matcher's safe state. It never itself
// holds a checkpoint (spec.md section 9: "checkpoint.checkpoint == none"),
// enforced here simply by checkpoint never containing a *checkpoint field.
type checkpoint struct {
	bidIdx, askIdx   int
	bidOutcomes      []orderOutcome
	askOutcomes      []orderOutcome
	debt             *types.Debt
	amm              *amm.PoolSnapshot
	results          Results
}

// Matcher runs the volume-fill solve for a single pool's OrderBook.
type Matcher struct {
	book *orderpool.OrderBook

	bidIdx, askIdx int
	bidOutcomes    []orderOutcome
	askOutcomes    []orderOutcome

	debt *types.Debt
	amm  *amm.PoolSnapshot

	results Results

	checkpoint *checkpoint
}

// New builds a matcher over book and immediately saves an initial
// checkpoint, matching the Rust original's constructor.
func New(book *orderpool.OrderBook) *Matcher {
	m := &Matcher{
		book:        book,
		bidOutcomes: make([]orderOutcome, len(book.Bids)),
		askOutcomes: make([]orderOutcome, len(book.Asks)),
		results:     newResults(),
	}
	for i := range m.bidOutcomes {
		m.bidOutcomes[i] = unfilled()
	}
	for i := range m.askOutcomes {
		m.askOutcomes[i] = unfilled()
	}
	if book.AMM != nil {
		snap := book.AMM.Clone()
		m.amm = &snap
	}
	m.saveCheckpoint()
	return m
}

func (m *Matcher) saveCheckpoint() {
	cp := &checkpoint{
		bidIdx:      m.bidIdx,
		askIdx:      m.askIdx,
		bidOutcomes: append([]orderOutcome(nil), m.bidOutcomes...),
		askOutcomes: append([]orderOutcome(nil), m.askOutcomes...),
		results:     m.results.clone(),
	}
	if m.debt != nil {
		d := *m.debt
		cp.debt = &d
	}
	if m.amm != nil {
		snap := m.amm.Clone()
		cp.amm = &snap
	}
	m.checkpoint = cp
}

// Rollback restores the matcher to its last checkpoint, used by the
// caller after AmmMathOverflow or another unexpected-state error (spec.md
// section 7: "roll back to last checkpoint, return ErrorEncountered; the
// round continues with a truncated solution").
func (m *Matcher) Rollback() {
	cp := m.checkpoint
	if cp == nil {
		return
	}
	metrics.MatcherCheckpointRollbacks.Inc()
	m.bidIdx = cp.bidIdx
	m.askIdx = cp.askIdx
	m.bidOutcomes = append([]orderOutcome(nil), cp.bidOutcomes...)
	m.askOutcomes = append([]orderOutcome(nil), cp.askOutcomes...)
	m.results = cp.results.clone()
	if cp.debt != nil {
		d := *cp.debt
		m.debt = &d
	} else {
		m.debt = nil
	}
	if cp.amm != nil {
		snap := cp.amm.Clone()
		m.amm = &snap
	}
}

// Results returns the matcher's accumulated solution so far.
func (m *Matcher) Results() Results { return m.results }

// RunMatch drives single_match until an end reason fires (spec.md section
// 4.4: "single iteration = single_match, driven by run_match until an end
// reason fires").
func (m *Matcher) RunMatch() EndReason {
	for {
		if r := m.SingleMatch(); r != EndNone {
			return r
		}
	}
}

// nextOrder implements the selection rules of spec.md section 4.4 step 1.
func (m *Matcher) nextOrder(isBid bool, considerDebt bool) (entry, bool) {
	idxPtr := &m.bidIdx
	outcomes := m.bidOutcomes
	book := m.book.Bids
	if !isBid {
		idxPtr = &m.askIdx
		outcomes = m.askOutcomes
		book = m.book.Asks
	}

	// A partial-fill entry keeps priority at its own index.
	idx := *idxPtr
	for idx < len(outcomes) && outcomes[idx].filled {
		idx++
	}
	*idxPtr = idx

	var bookOrder *types.Order
	var bookPrice types.Ray
	hasBook := idx < len(book)
	if hasBook {
		bookOrder = book[idx]
		bookPrice = bookOrder.Price()
	}

	// A book order already carrying a partial fill keeps priority at its
	// own index ahead of any debt/AMM preemption (spec.md section 4.4 step
	// 1: "If the current index points to a partial-fill entry, it remains
	// chosen").
	if hasBook && outcomes[idx].partial {
		return entry{
			kind:      entryBook,
			bookIndex: idx,
			order:     bookOrder,
			isBid:     isBid,
		}, true
	}

	var debt *types.Debt
	if considerDebt {
		debt = m.debt
	}

	moreAdvantageous := func(a, b types.Ray) bool {
		if isBid {
			return a.GreaterThan(b)
		}
		return a.LessThan(b)
	}

	if debt != nil && !debt.IsZero() {
		debtBeatsBook := !hasBook || moreAdvantageous(debt.Price, bookPrice)
		var ammPrice types.Ray
		hasAMM := m.amm != nil
		if hasAMM {
			ammPrice = m.amm.Price.AsRay()
		}
		debtBeatsAMMOrEqual := !hasAMM || !moreAdvantageous(ammPrice, debt.Price)

		if debtBeatsBook && debtBeatsAMMOrEqual {
			bound := bookPrice
			if !hasBook {
				bound = types.ZeroRay()
			}
			return entry{
				kind:       entryComposite,
				debt:       debt,
				boundPrice: bound,
				isBid:      isBid,
			}, true
		}
	}

	if m.amm != nil {
		ammPrice := m.amm.Price.AsRay()
		if !hasBook || moreAdvantageous(ammPrice, bookPrice) {
			bound := bookPrice
			if !hasBook {
				bound = ammPrice
			}
			return entry{
				kind:       entryAMM,
				boundPrice: bound,
				isBid:      isBid,
			}, true
		}
	}

	if hasBook {
		return entry{
			kind:      entryBook,
			bookIndex: idx,
			order:     bookOrder,
			isBid:     isBid,
		}, true
	}

	return entry{}, false
}

func (m *Matcher) fillAMM(matched *uint256.Int, bidSide bool) error {
	if m.amm == nil {
		return nil
	}
	newSnap, net := m.amm.MoveBy(matched, bidSide)
	if newSnap.Price.SqrtPriceX96 == nil {
		return ErrAMMMathOverflow
	}
	m.amm = &newSnap
	m.results.AMMVolume = new(uint256.Int).Add(m.results.AMMVolume, matched)
	p := m.amm.Price
	m.results.AMMFinalPrice = &p
	m.results.AMMNetBid = bidSide
	_ = net
	return nil
}

// SingleMatch executes one step of the algorithm in spec.md section 4.4
// steps 1-6 and returns EndNone to keep iterating, or a terminal reason.
func (m *Matcher) SingleMatch() EndReason {
	metrics.MatcherIterations.Inc()
	bid, ok := m.nextOrder(true, true)
	if !ok {
		return EndNoMoreBids
	}
	ask, ok := m.nextOrder(false, true)
	if !ok {
		return EndNoMoreAsks
	}

	if bid.isAMM() && ask.isAMM() {
		return EndBothSidesAMM
	}

	bidPrice := bid.price(m.amm)
	askPrice := ask.price(m.amm)
	if askPrice.GreaterThan(bidPrice) {
		return EndNoLongerCross
	}

	askQ := ask.quantity(bidPrice, m.amm)
	bidQ := bid.quantity(askPrice, m.amm)

	// Step 4: zero-ask-with-debt special case.
	if askQ.IsZero() && ask.isDebt() {
		return m.handleZeroAskDebt(bid, ask, bidPrice)
	}

	if askQ.IsZero() || bidQ.IsZero() {
		return EndZeroQuantity
	}

	matched := bidQ
	if askQ.Cmp(bidQ) < 0 {
		matched = askQ
	}
	matched = new(uint256.Int).Set(matched)

	m.results.TotalVolume = new(uint256.Int).Add(m.results.TotalVolume, matched)
	if bid.order != nil && bid.order.IsPartial() {
		m.results.PartialBidVol = new(uint256.Int).Add(m.results.PartialBidVol, matched)
	}
	if ask.order != nil && ask.order.IsPartial() {
		m.results.PartialAskVol = new(uint256.Int).Add(m.results.PartialAskVol, matched)
	}

	if bid.isAMM() != ask.isAMM() {
		if err := m.fillAMM(matched, bid.isAMM()); err != nil {
			return EndErrorEncountered
		}
	}
	if ask.isDebt() {
		if err := m.consumeDebtLeg(&ask, matched); err != nil {
			return EndErrorEncountered
		}
	}
	if bid.isDebt() {
		if err := m.consumeDebtLeg(&bid, matched); err != nil {
			return EndErrorEncountered
		}
	}

	switch {
	case bidQ.Cmp(askQ) == 0:
		m.results.Price = bidPrice.Mid(askPrice)
		m.markComplete(&ask)
		m.markComplete(&bid)
		m.saveCheckpoint()
	case bidQ.Cmp(askQ) > 0:
		m.results.Price = bidPrice
		m.markComplete(&ask)
		safe := m.markPartial(&bid, matched)
		if safe {
			m.saveCheckpoint()
		}
	default:
		m.results.Price = askPrice
		m.markComplete(&bid)
		safe := m.markPartial(&ask, matched)
		if safe {
			m.saveCheckpoint()
		}
	}
	return EndNone
}

// markComplete records a CompleteFill outcome for book entries; AMM and
// Composite entries have no outcome slot (spec.md section 4.4 step 6).
func (m *Matcher) markComplete(e *entry) {
	if e.kind != entryBook {
		return
	}
	outcomes := m.outcomesFor(e.isBid)
	outcomes[e.bookIndex].filled = true
}

// markPartial records a PartialFill for a book order, or treats AMM/
// Composite entries as always "checkpointable" per spec.md section 4.4
// step 6: "Checkpoint only if the partial side is partial-safe or the
// partial side is AMM/Composite." Returns whether this state is safe to
// checkpoint.
func (m *Matcher) markPartial(e *entry, matched *uint256.Int) (safe bool) {
	if e.kind != entryBook {
		return true
	}
	outcomes := m.outcomesFor(e.isBid)
	o := &outcomes[e.bookIndex]
	o.partial = true
	if o.matched == nil {
		o.matched = new(uint256.Int)
	}
	o.matched = new(uint256.Int).Add(o.matched, matched)
	e.order.Fill(matched)
	return e.order.IsPartial()
}

func (m *Matcher) outcomesFor(isBid bool) []orderOutcome {
	if isBid {
		return m.bidOutcomes
	}
	return m.askOutcomes
}

// handleZeroAskDebt implements spec.md section 4.4 step 4 verbatim: the
// ask side's quantity against the bid price is zero because it is a
// Composite(debt) entry; look past the debt at the next real ask, bound
// its quantity if it is AMM by the AMM position that would zero out the
// debt, then match min(next_ask_q, |debt|) and move the debt/AMM state
// accordingly.
func (m *Matcher) handleZeroAskDebt(bid, ask entry, bidPrice types.Ray) EndReason {
	nextAsk, ok := m.nextOrder(false, false)
	if !ok {
		return EndNoMoreAsks
	}
	if nextAsk.price(m.amm).GreaterThan(bidPrice) {
		return EndNoLongerCross
	}

	normalNextQ := nextAsk.quantity(bidPrice, m.amm)
	nextAskQ := normalNextQ
	if nextAsk.isAMM() && m.debt != nil {
		intersect := m.amm.AmmIntersect(*m.debt)
		if intersect.Cmp(normalNextQ) < 0 {
			nextAskQ = intersect
		}
	}

	curAskQ := ask.negativeQuantity()
	if curAskQ.IsZero() {
		return EndErrorEncountered
	}

	matched := nextAskQ
	if curAskQ.Cmp(nextAskQ) < 0 {
		matched = curAskQ
	}
	matched = new(uint256.Int).Set(matched)

	if ask.isAMM() || nextAsk.isAMM() {
		if err := m.fillAMM(matched, false); err != nil {
			return EndErrorEncountered
		}
	}

	switch nextAskQ.Cmp(curAskQ) {
	case 0:
		m.results.Price = nextAsk.price(m.amm)
		m.markComplete(&nextAsk)
		m.setDebtPrice(nextAsk.price(m.amm))
		m.partialFillDebt(matched)
		m.saveCheckpoint()
	case 1:
		m.results.Price = nextAsk.price(m.amm)
		m.setDebtPrice(nextAsk.price(m.amm))
		m.partialFillDebt(matched)
		m.markPartialValue(&nextAsk, matched)
	default:
		m.partialFillDebt(matched)
		m.markComplete(&nextAsk)
		m.saveCheckpoint()
	}
	return EndNone
}

// consumeDebtLeg mutates the matcher's own debt (and, when e's Composite
// leg is riding an AMM position, the AMM snapshot too) by matched, the
// amount just crossed against e in the normal SingleMatch path. Without
// this the debt field would never shrink on a Composite entry that still
// reports a nonzero quantity, and the same debt would be re-offered at an
// unchanged size on every subsequent iteration.
func (m *Matcher) consumeDebtLeg(e *entry, matched *uint256.Int) error {
	if e.debt == nil || e.debt.IsZero() {
		return nil
	}
	if m.amm != nil && !e.boundPrice.IsZero() {
		room := m.amm.QuantityToPrice(e.boundPrice, e.isBid)
		if room.Sign() > 0 && room.Cmp(e.debt.Amount) < 0 {
			if err := m.fillAMM(matched, e.isBid); err != nil {
				return err
			}
		}
	}
	m.partialFillDebt(matched)
	return nil
}

func (m *Matcher) setDebtPrice(p types.Ray) {
	if m.debt == nil {
		return
	}
	d := m.debt.SetPrice(p)
	m.debt = &d
}

func (m *Matcher) partialFillDebt(matched *uint256.Int) {
	if m.debt == nil {
		return
	}
	d := m.debt.PartialFill(matched)
	m.debt = &d
}

func (m *Matcher) markPartialValue(e *entry, matched *uint256.Int) {
	if e.kind != entryBook {
		return
	}
	outcomes := m.outcomesFor(e.isBid)
	o := &outcomes[e.bookIndex]
	o.partial = true
	if o.matched == nil {
		o.matched = new(uint256.Int)
	}
	o.matched = new(uint256.Int).Add(o.matched, matched)
	e.order.Fill(matched)
}

// SetDebt installs the matcher's initial debt fragment for this round
// (spec.md section 9: "the matcher's own debt field").
func (m *Matcher) SetDebt(d *types.Debt) { m.debt = d }
