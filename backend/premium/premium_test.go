package premium

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/srkaul/goalmaster/backend/models"
	cache "github.com/srkaul/goalmaster/backend/storage/cache"
	storage "github.com/srkaul/goalmaster/backend/storage/persistent"
)

// fakeProvider is a scripted store for tests.
type fakeProvider struct {
	products    []Product
	history     []Purchase
	purchaseErr error
	completions chan Purchase
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		products: []Product{{
			ID:          UnlockSKU,
			Title:       "Goal Master Upgrade",
			Description: "Unlock unlimited goals, save your reflections, and personalize your dashboard!",
			Price:       "$4.99",
		}},
		completions: make(chan Purchase, 1),
	}
}

func (f *fakeProvider) Connect() error { return nil }
func (f *fakeProvider) Products(ctx context.Context, ids []string) ([]Product, error) {
	return f.products, nil
}
func (f *fakeProvider) Purchase(ctx context.Context, productID string) error {
	if f.purchaseErr != nil {
		return f.purchaseErr
	}
	f.completions <- Purchase{ProductID: productID, PurchasedAt: time.Now()}
	return nil
}
func (f *fakeProvider) History(ctx context.Context) ([]Purchase, error) { return f.history, nil }
func (f *fakeProvider) Completions() <-chan Purchase                    { return f.completions }
func (f *fakeProvider) Disconnect() error                               { return nil }

func newTestService(t *testing.T, provider Provider) (*Service, *storage.MemoryStorage, primitive.ObjectID) {
	t.Helper()
	store := storage.NewMemoryStorage()
	user, err := store.AddUser(context.Background(), &models.User{
		Email:        "buyer@example.com",
		PasswordHash: "hash",
		Level:        1,
	})
	assert.NoError(t, err)
	return NewService(store, cache.NewMemoryCache(), provider), store, user.ID
}

func TestBuyUnlocksPremium(t *testing.T) {
	service, store, userID := newTestService(t, newFakeProvider())

	assert.False(t, service.Status(context.Background(), userID))

	err := service.Buy(context.Background(), userID)
	assert.NoError(t, err)

	user, err := store.FindUser(context.Background(), bson.M{"_id": userID})
	assert.NoError(t, err)
	assert.True(t, user.IsPremium)
	assert.True(t, service.Status(context.Background(), userID))
}

func TestBuyWithoutListedProduct(t *testing.T) {
	provider := newFakeProvider()
	provider.products = nil
	service, _, userID := newTestService(t, provider)

	err := service.Buy(context.Background(), userID)
	assert.ErrorIs(t, err, ErrProductUnavailable)
}

func TestBuyPurchaseRejected(t *testing.T) {
	provider := newFakeProvider()
	provider.purchaseErr = errors.New("card declined")
	service, store, userID := newTestService(t, provider)

	err := service.Buy(context.Background(), userID)
	assert.ErrorIs(t, err, ErrPurchaseFailed)

	user, err := store.FindUser(context.Background(), bson.M{"_id": userID})
	assert.NoError(t, err)
	assert.False(t, user.IsPremium)
}

func TestRestoreFromHistory(t *testing.T) {
	provider := newFakeProvider()
	provider.history = []Purchase{{ProductID: UnlockSKU, PurchasedAt: time.Now()}}
	service, _, userID := newTestService(t, provider)

	restored, err := service.Restore(context.Background(), userID)
	assert.NoError(t, err)
	assert.True(t, restored)
	assert.True(t, service.Status(context.Background(), userID))
}

func TestRestoreWithEmptyHistory(t *testing.T) {
	service, _, userID := newTestService(t, newFakeProvider())

	restored, err := service.Restore(context.Background(), userID)
	assert.NoError(t, err)
	assert.False(t, restored)
	assert.False(t, service.Status(context.Background(), userID))
}

// unreachableStore simulates a store outage for reads.
type unreachableStore struct {
	storage.StorageInterface
}

func (u *unreachableStore) FindUser(ctx context.Context, filter interface{}) (*models.User, error) {
	return nil, errors.New("connection refused")
}

func TestStatusFallsBackToCache(t *testing.T) {
	store := storage.NewMemoryStorage()
	c := cache.NewMemoryCache()
	user, err := store.AddUser(context.Background(), &models.User{
		Email:        "offline@example.com",
		PasswordHash: "hash",
		Level:        1,
	})
	assert.NoError(t, err)

	service := NewService(store, c, newFakeProvider())
	assert.NoError(t, service.Unlock(context.Background(), user.ID))

	offline := NewService(&unreachableStore{StorageInterface: store}, c, nil)
	assert.True(t, offline.Status(context.Background(), user.ID))
}

func TestStatusDefaultsToFreeTier(t *testing.T) {
	offline := NewService(&unreachableStore{StorageInterface: storage.NewMemoryStorage()}, cache.NewMemoryCache(), nil)
	assert.False(t, offline.Status(context.Background(), primitive.NewObjectID()))
}
