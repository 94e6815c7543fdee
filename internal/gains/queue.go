package gains

import (
	"slices"

	"mf-portfolio-go/internal/fund"

	"github.com/shopspring/decimal"
)

// lotQueue is the FIFO of open lots of one scheme: a slice with a head index.
// The running total makes the oversell check O(1).
type lotQueue struct {
	lots  []fund.Lot
	head  int
	total decimal.Decimal
}

func (q *lotQueue) push(l fund.Lot) {
	q.lots = append(q.lots, l)
	q.total = q.total.Add(l.Units)
}

func (q *lotQueue) empty() bool { return q.head == len(q.lots) }

// front returns the oldest open lot. The queue must not be empty.
func (q *lotQueue) front() *fund.Lot { return &q.lots[q.head] }

// take removes up to units from the front lot and returns the amount taken
// together with the lot as it was before the call.
func (q *lotQueue) take(units decimal.Decimal) (decimal.Decimal, fund.Lot) {
	f := q.front()
	lot := *f
	m := decimal.Min(units, f.Units)

	f.Units = f.Units.Sub(m)
	q.total = q.total.Sub(m)
	if !f.Units.IsPositive() {
		q.pop()
	}
	return m, lot
}

func (q *lotQueue) pop() {
	q.lots[q.head] = fund.Lot{}
	q.head++
	// Reclaim the consumed prefix once it dominates the slice.
	if q.head > 32 && q.head*2 > len(q.lots) {
		q.lots = slices.Clone(q.lots[q.head:])
		q.head = 0
	}
}

// open returns a copy of the lots still in the queue, oldest first.
func (q *lotQueue) open() []fund.Lot {
	return slices.Clone(q.lots[q.head:])
}
