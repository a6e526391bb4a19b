// Package paper is an in-memory venue used for dry runs and tests. Orders
// never touch an exchange; feed pushes are driven by the caller.
package paper

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/venue"
	"main/pkg/exception"
)

// Venue implements the full adapter capability set, including the bulk
// primitive. Error injection hooks let tests exercise the failure taxonomy.
type Venue struct {
	mu     sync.Mutex
	nextID int64
	orders map[string]model.OpenOrder

	createErr error
	bulkErr   error
	cancelErr error

	submissions []venue.OrderParams

	accountHandler func(venue.AccountUpdate)
	ordersHandler  func([]model.OpenOrder)
	depthHandler   func(model.Depth)
	tickerHandler  func(model.Ticker)
}

func New() *Venue {
	return &Venue{orders: make(map[string]model.OpenOrder)}
}

// FailNextCreate makes the next CreateOrder return err once.
func (v *Venue) FailNextCreate(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.createErr = err
}

// FailBulk makes CreateBulkOrders fail until cleared.
func (v *Venue) FailBulk(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bulkErr = err
}

// FailNextCancel makes the next cancel call return err once.
func (v *Venue) FailNextCancel(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelErr = err
}

func (v *Venue) CreateOrder(_ context.Context, p venue.OrderParams) (venue.PlacedOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.createLocked(p)
}

func (v *Venue) createLocked(p venue.OrderParams) (venue.PlacedOrder, error) {
	if err := v.createErr; err != nil {
		v.createErr = nil
		return venue.PlacedOrder{}, err
	}

	v.nextID++
	id := strconv.FormatInt(v.nextID, 10)

	v.submissions = append(v.submissions, p)
	v.orders[id] = model.OpenOrder{
		ID:            id,
		Side:          p.Side,
		Type:          p.Type,
		Price:         p.Price,
		StopPrice:     p.StopPrice,
		Quantity:      p.Quantity,
		Status:        enum.OrderStatusNew,
		ReduceOnly:    p.ReduceOnly,
		ClosePosition: p.ClosePosition,
		UpdateTime:    time.Now().UnixMilli(),
	}

	return venue.PlacedOrder{ID: id, ClientOrderID: p.ClientOrderID, Status: enum.OrderStatusNew}, nil
}

func (v *Venue) CreateBulkOrders(_ context.Context, params []venue.OrderParams) ([]venue.PlacedOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.bulkErr; err != nil {
		return nil, err
	}

	placed := make([]venue.PlacedOrder, 0, len(params))
	for _, p := range params {
		o, err := v.createLocked(p)
		if err != nil {
			return placed, err
		}
		placed = append(placed, o)
	}

	return placed, nil
}

func (v *Venue) CancelOrder(_ context.Context, _ string, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.cancelErr; err != nil {
		v.cancelErr = nil
		return err
	}

	if _, ok := v.orders[orderID]; !ok {
		return exception.ErrUnknownOrder
	}
	delete(v.orders, orderID)

	return nil
}

func (v *Venue) CancelOrders(_ context.Context, _ string, orderIDs []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.cancelErr; err != nil {
		v.cancelErr = nil
		return err
	}

	for _, id := range orderIDs {
		delete(v.orders, id)
	}

	return nil
}

func (v *Venue) CancelAllOrders(_ context.Context, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.cancelErr; err != nil {
		v.cancelErr = nil
		return err
	}

	v.orders = make(map[string]model.OpenOrder)

	return nil
}

func (v *Venue) WatchAccount(_ context.Context, handler func(venue.AccountUpdate)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.accountHandler = handler
	return nil
}

func (v *Venue) WatchOrders(_ context.Context, _ string, handler func([]model.OpenOrder)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ordersHandler = handler
	return nil
}

func (v *Venue) WatchDepth(_ context.Context, _ string, handler func(model.Depth)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.depthHandler = handler
	return nil
}

func (v *Venue) WatchTicker(_ context.Context, _ string, handler func(model.Ticker)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tickerHandler = handler
	return nil
}

// PushAccount delivers an account snapshot to the subscriber.
func (v *Venue) PushAccount(u venue.AccountUpdate) {
	if h := v.handlerAccount(); h != nil {
		h(u)
	}
}

// PushOpenOrders delivers the venue's current open order set wholesale.
func (v *Venue) PushOpenOrders() {
	h := v.handlerOrders()
	if h == nil {
		return
	}
	h(v.OpenOrders())
}

// PushDepth delivers a depth snapshot to the subscriber.
func (v *Venue) PushDepth(d model.Depth) {
	if h := v.handlerDepth(); h != nil {
		h(d)
	}
}

// PushTicker delivers a ticker snapshot to the subscriber.
func (v *Venue) PushTicker(t model.Ticker) {
	if h := v.handlerTicker(); h != nil {
		h(t)
	}
}

// OpenOrders returns the resting orders sorted by id.
func (v *Venue) OpenOrders() []model.OpenOrder {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]model.OpenOrder, 0, len(v.orders))
	for _, o := range v.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Submissions returns every order params seen by the venue, in order.
func (v *Venue) Submissions() []venue.OrderParams {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]venue.OrderParams, len(v.submissions))
	copy(out, v.submissions)
	return out
}

// Reset clears orders and the submission log, keeping subscribers.
func (v *Venue) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders = make(map[string]model.OpenOrder)
	v.submissions = nil
	v.nextID = 0
}

func (v *Venue) handlerAccount() func(venue.AccountUpdate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.accountHandler
}

func (v *Venue) handlerOrders() func([]model.OpenOrder) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ordersHandler
}

func (v *Venue) handlerDepth() func(model.Depth) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.depthHandler
}

func (v *Venue) handlerTicker() func(model.Ticker) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tickerHandler
}
