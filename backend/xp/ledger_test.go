package xp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/srkaul/goalmaster/backend/models"
	cache "github.com/srkaul/goalmaster/backend/storage/cache"
	storage "github.com/srkaul/goalmaster/backend/storage/persistent"
)

func newTestLedger(t *testing.T) (*Ledger, *storage.MemoryStorage, primitive.ObjectID) {
	t.Helper()
	store := storage.NewMemoryStorage()
	user, err := store.AddUser(context.Background(), &models.User{
		Email:        "test@example.com",
		PasswordHash: "hash",
		Level:        1,
	})
	assert.NoError(t, err)
	return NewLedger(store, cache.NewMemoryCache()), store, user.ID
}

func TestLevelForXP(t *testing.T) {
	assert.Equal(t, 1, LevelForXP(0))
	assert.Equal(t, 1, LevelForXP(99))
	assert.Equal(t, 2, LevelForXP(100))
	assert.Equal(t, 2, LevelForXP(199))
	assert.Equal(t, 3, LevelForXP(200))
	assert.Equal(t, 1, LevelForXP(-50))
}

func TestAwardAccumulates(t *testing.T) {
	ledger, _, userID := newTestLedger(t)

	user, levelUp, err := ledger.Award(context.Background(), userID, StepCompletionXP)
	assert.NoError(t, err)
	assert.Nil(t, levelUp)
	assert.Equal(t, 10, user.XP)
	assert.Equal(t, 1, user.Level)

	user, levelUp, err = ledger.Award(context.Background(), userID, 30)
	assert.NoError(t, err)
	assert.Nil(t, levelUp)
	assert.Equal(t, 40, user.XP)
}

func TestAwardRejectsNonPositiveAmounts(t *testing.T) {
	ledger, _, userID := newTestLedger(t)

	for _, amount := range []int{0, -10} {
		_, _, err := ledger.Award(context.Background(), userID, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestAwardCrossingThresholdLevelsUp(t *testing.T) {
	ledger, _, userID := newTestLedger(t)

	_, levelUp, err := ledger.Award(context.Background(), userID, 95)
	assert.NoError(t, err)
	assert.Nil(t, levelUp)

	user, levelUp, err := ledger.Award(context.Background(), userID, StepCompletionXP)
	assert.NoError(t, err)
	assert.Equal(t, 105, user.XP)
	assert.Equal(t, 2, user.Level)
	if assert.NotNil(t, levelUp) {
		assert.Equal(t, 1, levelUp.From)
		assert.Equal(t, 2, levelUp.To)
		assert.Equal(t, LevelReward(nil, 2), levelUp.Reward)
	}
}

func TestAwardLandingExactlyOnThresholdLevelsUp(t *testing.T) {
	ledger, _, userID := newTestLedger(t)

	_, _, err := ledger.Award(context.Background(), userID, 90)
	assert.NoError(t, err)

	user, levelUp, err := ledger.Award(context.Background(), userID, StepCompletionXP)
	assert.NoError(t, err)
	assert.Equal(t, 100, user.XP)
	assert.Equal(t, 2, user.Level)
	assert.NotNil(t, levelUp)
}

func TestAwardSkippingLevelsProducesOneLevelUp(t *testing.T) {
	ledger, _, userID := newTestLedger(t)

	user, levelUp, err := ledger.Award(context.Background(), userID, 250)
	assert.NoError(t, err)
	assert.Equal(t, 3, user.Level)
	if assert.NotNil(t, levelUp) {
		assert.Equal(t, 1, levelUp.From)
		assert.Equal(t, 3, levelUp.To)
	}
}

func TestSetRewardUsedOnLevelUp(t *testing.T) {
	ledger, _, userID := newTestLedger(t)

	err := ledger.SetReward(context.Background(), userID, 2, "Movie night")
	assert.NoError(t, err)

	_, levelUp, err := ledger.Award(context.Background(), userID, 120)
	assert.NoError(t, err)
	if assert.NotNil(t, levelUp) {
		assert.Equal(t, "Movie night", levelUp.Reward)
	}
}

func TestSetRewardValidation(t *testing.T) {
	ledger, _, userID := newTestLedger(t)

	assert.Error(t, ledger.SetReward(context.Background(), userID, 0, "anything"))
	assert.Error(t, ledger.SetReward(context.Background(), userID, 2, ""))
}

func TestLevelReward(t *testing.T) {
	user := &models.User{RewardMap: map[string]string{"3": "New book"}}

	// The user's own entry wins over every built-in.
	assert.Equal(t, "New book", LevelReward(user, 3))

	// Levels 1-5 fall back to the built-in per-level table.
	assert.Equal(t, builtinRewards[4], LevelReward(user, 4))
	assert.Equal(t, builtinRewards[1], LevelReward(nil, 1))
	assert.NotEqual(t, builtinRewards[2], builtinRewards[5])

	// Beyond the table the generic default applies.
	assert.Equal(t, DefaultReward, LevelReward(user, 6))
	assert.Equal(t, DefaultReward, LevelReward(nil, 42))
}

func TestStatusFromStore(t *testing.T) {
	ledger, _, userID := newTestLedger(t)

	_, _, err := ledger.Award(context.Background(), userID, 130)
	assert.NoError(t, err)

	status, err := ledger.Status(context.Background(), userID)
	assert.NoError(t, err)
	assert.Equal(t, 130, status.XP)
	assert.Equal(t, 2, status.Level)
	assert.Equal(t, 30, status.XPIntoLevel)
	assert.Equal(t, 200, status.NextLevelAt)
	assert.False(t, status.FromCache)
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

	ledger := NewLedger(store, c)
	_, _, err = ledger.Award(context.Background(), user.ID, 45)
	assert.NoError(t, err)

	offline := NewLedger(&unreachableStore{StorageInterface: store}, c)
	status, err := offline.Status(context.Background(), user.ID)
	assert.NoError(t, err)
	assert.Equal(t, 45, status.XP)
	assert.Equal(t, 1, status.Level)
	assert.True(t, status.FromCache)
}

func TestStatusErrorsWhenStoreAndCacheMiss(t *testing.T) {
	store := storage.NewMemoryStorage()
	ledger := NewLedger(&unreachableStore{StorageInterface: store}, cache.NewMemoryCache())

	_, err := ledger.Status(context.Background(), primitive.NewObjectID())
	assert.Error(t, err)
}
