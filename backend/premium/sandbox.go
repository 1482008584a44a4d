package premium

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SandboxProvider is a store stand-in for installations that have no
// billing backend configured. It lists the unlock product and completes
// every purchase immediately, and it remembers completed purchases so
// Restore works across a session.
type SandboxProvider struct {
	mu          sync.Mutex
	history     []Purchase
	completions chan Purchase
}

func NewSandboxProvider() *SandboxProvider {
	return &SandboxProvider{completions: make(chan Purchase, 1)}
}

func (p *SandboxProvider) Connect() error { return nil }

func (p *SandboxProvider) Products(ctx context.Context, ids []string) ([]Product, error) {
	products := make([]Product, 0, len(ids))
	for _, id := range ids {
		if id == UnlockSKU {
			products = append(products, Product{
				ID:          UnlockSKU,
				Title:       "GoalMaster Premium",
				Description: "Unlimited goals, categories and steps, plus reflections.",
				Price:       "$4.99",
			})
		}
	}
	return products, nil
}

func (p *SandboxProvider) Purchase(ctx context.Context, productID string) error {
	if productID != UnlockSKU {
		return fmt.Errorf("unknown product %q", productID)
	}
	purchase := Purchase{ProductID: productID, PurchasedAt: time.Now()}
	p.mu.Lock()
	p.history = append(p.history, purchase)
	p.mu.Unlock()
	p.completions <- purchase
	return nil
}

func (p *SandboxProvider) History(ctx context.Context) ([]Purchase, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Purchase(nil), p.history...), nil
}

func (p *SandboxProvider) Completions() <-chan Purchase { return p.completions }

func (p *SandboxProvider) Disconnect() error { return nil }
