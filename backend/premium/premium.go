package premium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	cache "github.com/srkaul/goalmaster/backend/storage/cache"
	storage "github.com/srkaul/goalmaster/backend/storage/persistent"
)

// UnlockSKU is the store product that unlocks the premium tier.
// It must match the product identifier configured with the store.
const UnlockSKU = "goal_master_unlock"

var (
	// ErrProductUnavailable is returned when the store has no product
	// to sell, for example while the storefront is unreachable.
	ErrProductUnavailable = errors.New("product is currently unavailable")

	// ErrPurchaseFailed is returned when the store rejected or aborted
	// a purchase attempt.
	ErrPurchaseFailed = errors.New("an error occurred while trying to make the purchase")
)

// Product describes a purchasable item as listed by the store.
type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

// Purchase is a completed store transaction.
type Purchase struct {
	ProductID   string    `json:"product_id"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// Provider abstracts the payment store. Purchases complete
// asynchronously: Purchase starts a transaction and the store reports
// the result on the Completions channel.
type Provider interface {
	Connect() error
	Products(ctx context.Context, ids []string) ([]Product, error)
	Purchase(ctx context.Context, productID string) error
	History(ctx context.Context) ([]Purchase, error)
	Completions() <-chan Purchase
	Disconnect() error
}

// Service manages the premium entitlement. The durable flag lives on
// the user document; a cached copy answers status checks when the
// primary store is unreachable.
type Service struct {
	store    storage.StorageInterface
	cache    cache.CacheInterface
	provider Provider
}

func NewService(store storage.StorageInterface, c cache.CacheInterface, provider Provider) *Service {
	return &Service{store: store, cache: c, provider: provider}
}

func premiumCacheKey(userID primitive.ObjectID) string {
	return "premium_" + userID.Hex()
}

// Unlock durably marks the user as premium and mirrors the flag into
// the cache. Unlocking an already premium user is a no-op.
func (s *Service) Unlock(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.store.UpdateUser(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_premium": true}})
	if err != nil {
		return fmt.Errorf("failed to unlock premium: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, premiumCacheKey(userID), true)
	}
	return nil
}

// Status reports whether the user has the premium entitlement. It
// prefers the durable flag and falls back to the cached copy when
// persistent storage is unreachable. With neither available the user
// is treated as free tier.
func (s *Service) Status(ctx context.Context, userID primitive.ObjectID) bool {
	user, err := s.store.FindUser(ctx, bson.M{"_id": userID})
	if err == nil {
		if s.cache != nil {
			_ = s.cache.Set(ctx, premiumCacheKey(userID), user.IsPremium)
		}
		return user.IsPremium
	}

	if s.cache != nil {
		cached, cacheErr := s.cache.Get(ctx, premiumCacheKey(userID))
		if cacheErr == nil {
			if flag, ok := cached.(bool); ok {
				return flag
			}
		}
	}
	return false
}

// Buy purchases the unlock product for the user. The product must be
// listed by the store, and the purchase must complete before ctx is
// done. On completion the entitlement is unlocked durably.
func (s *Service) Buy(ctx context.Context, userID primitive.ObjectID) error {
	if s.provider == nil {
		return ErrProductUnavailable
	}

	products, err := s.provider.Products(ctx, []string{UnlockSKU})
	if err != nil || len(products) == 0 {
		return ErrProductUnavailable
	}

	if err := s.provider.Purchase(ctx, products[0].ID); err != nil {
		return fmt.Errorf("%w: %v", ErrPurchaseFailed, err)
	}

	for {
		select {
		case purchase, ok := <-s.provider.Completions():
			if !ok {
				return ErrPurchaseFailed
			}
			if purchase.ProductID != UnlockSKU {
				continue
			}
			return s.Unlock(ctx, userID)
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrPurchaseFailed, ctx.Err())
		}
	}
}

// Restore re-grants the entitlement from the store's purchase history,
// for example after a reinstall. It reports whether an unlock purchase
// was found.
func (s *Service) Restore(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	if s.provider == nil {
		return false, ErrProductUnavailable
	}

	history, err := s.provider.History(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read purchase history: %w", err)
	}

	for _, purchase := range history {
		if purchase.ProductID == UnlockSKU {
			if err := s.Unlock(ctx, userID); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}
