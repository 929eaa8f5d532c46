package app

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/exchange"
	"github.com/uhyunpark/spotdex/pkg/metrics"
)

type submitResult struct {
	order *exchange.Order
	err   error
}

type submitReq struct {
	engine string
	owner  common.Address
	pair   exchange.PairID
	side   exchange.Side
	volume uint64
	ratio  uint64
	reply  chan submitResult
}

type cancelReq struct {
	engine string
	caller common.Address
	pair   exchange.PairID
	side   exchange.Side
	id     exchange.OrderID
	reply  chan error
}

// opReq carries a non-order state mutation (asset management, coin
// transfers, pair management, configuration) to be applied at the head of a
// cycle.
type opReq struct {
	apply func(height uint64) error
	reply chan error
}

// Queue buffers requests between cycles in three buckets drained in a fixed
// order: non-order ops first, then cancellations, then new orders. Within a
// bucket, FIFO by arrival. Once closed, pushes are refused so a request
// racing with shutdown cannot land after the final drain and strand its
// caller on the reply channel.
type Queue struct {
	mu      sync.Mutex
	closed  bool
	ops     []*opReq
	cancels []*cancelReq
	orders  []*submitReq
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) pushOp(r *opReq) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.ops = append(q.ops, r)
	q.mu.Unlock()
	metrics.QueueDepth.Inc()
	return true
}

func (q *Queue) pushCancel(r *cancelReq) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.cancels = append(q.cancels, r)
	q.mu.Unlock()
	metrics.QueueDepth.Inc()
	return true
}

func (q *Queue) pushSubmit(r *submitReq) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.orders = append(q.orders, r)
	q.mu.Unlock()
	metrics.QueueDepth.Inc()
	return true
}

// drain removes and returns everything queued so far.
func (q *Queue) drain() (ops []*opReq, cancels []*cancelReq, orders []*submitReq) {
	q.mu.Lock()
	ops, q.ops = q.ops, nil
	cancels, q.cancels = q.cancels, nil
	orders, q.orders = q.orders, nil
	q.mu.Unlock()

	metrics.QueueDepth.Sub(float64(len(ops) + len(cancels) + len(orders)))
	return ops, cancels, orders
}

// close marks the queue closed and returns whatever was still buffered.
// Subsequent pushes are refused.
func (q *Queue) close() (ops []*opReq, cancels []*cancelReq, orders []*submitReq) {
	q.mu.Lock()
	q.closed = true
	ops, q.ops = q.ops, nil
	cancels, q.cancels = q.cancels, nil
	orders, q.orders = q.orders, nil
	q.mu.Unlock()

	metrics.QueueDepth.Sub(float64(len(ops) + len(cancels) + len(orders)))
	return ops, cancels, orders
}

// Len returns the number of requests waiting for the next cycle.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops) + len(q.cancels) + len(q.orders)
}
