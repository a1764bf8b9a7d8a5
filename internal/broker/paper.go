package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Paper is an in-process broker session. It accepts every order once
// connected unless Reject says otherwise.
type Paper struct {
	// Latency is waited out on connect and on every submit.
	Latency time.Duration
	// Reject, when set, is consulted for every order; a non-nil error
	// rejects it.
	Reject func(Order) error

	mu      sync.Mutex
	session string
	orders  []Order
}

func NewPaper() *Paper {
	return &Paper{}
}

func (p *Paper) Name() string {
	return "paper"
}

func (p *Paper) Connect(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if err := wait(ctx, p.Latency); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = uuid.NewString()
	slog.Info("paper broker session opened", "user", creds.Username, "environment", creds.Environment)
	return nil
}

func (p *Paper) Submit(ctx context.Context, order Order) error {
	if !p.Connected() {
		return ErrNotConnected
	}
	if err := wait(ctx, p.Latency); err != nil {
		return err
	}
	if p.Reject != nil {
		if err := p.Reject(order); err != nil {
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, order)
	slog.Info("paper order accepted", "side", order.Side, "symbol", order.Symbol, "size", order.Size, "client_order_id", order.ClientOrderID)
	return nil
}

func (p *Paper) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = ""
}

func (p *Paper) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != ""
}

// Orders returns the orders accepted so far.
func (p *Paper) Orders() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Order(nil), p.orders...)
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
