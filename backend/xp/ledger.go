package xp

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/srkaul/goalmaster/backend/models"
	cache "github.com/srkaul/goalmaster/backend/storage/cache"
	storage "github.com/srkaul/goalmaster/backend/storage/persistent"
)

const (
	// LevelThreshold is the XP needed for each level.
	LevelThreshold = 100

	// StepCompletionXP is awarded the first time a step is completed.
	StepCompletionXP = 10

	// DefaultReward is suggested on level-up when neither the user nor
	// the built-in per-level table has a reward for the level reached.
	DefaultReward = "Take a coffee break"
)

// builtinRewards suggests a reward for the first few levels when the
// user has not configured their own.
var builtinRewards = map[int]string{
	1: "Take a coffee break",
	2: "Watch an episode of your favorite show",
	3: "Treat yourself to a nice meal",
	4: "Take an afternoon off",
	5: "Plan a day trip",
}

// ErrInvalidAmount is returned when an award amount is zero or negative.
var ErrInvalidAmount = errors.New("xp amount must be a positive integer")

// LevelUp describes a level boundary crossed by a single award.
// At most one is produced per award, no matter how many thresholds
// the amount jumped over.
type LevelUp struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reward string `json:"reward"`
}

// Status is a point-in-time view of a user's experience.
type Status struct {
	XP          int  `json:"xp"`
	Level       int  `json:"level"`
	XPIntoLevel int  `json:"xp_into_level"`
	NextLevelAt int  `json:"next_level_at"`
	FromCache   bool `json:"from_cache"`
}

// Ledger awards and reads experience points. Writes go to persistent
// storage first and are mirrored into the cache, so Status can answer
// from the cache when the primary store is unreachable.
type Ledger struct {
	store storage.StorageInterface
	cache cache.CacheInterface
}

func NewLedger(store storage.StorageInterface, c cache.CacheInterface) *Ledger {
	return &Ledger{store: store, cache: c}
}

// LevelForXP maps a lifetime XP total to a level. Level starts at 1
// and increases every LevelThreshold points.
func LevelForXP(total int) int {
	if total < 0 {
		total = 0
	}
	return total/LevelThreshold + 1
}

func cacheKey(userID primitive.ObjectID) string {
	return "xp_" + userID.Hex()
}

// Award adds amount to the user's lifetime XP and reports whether the
// award crossed a level boundary. The level comparison uses the total
// returned by the atomic increment, so concurrent awards each see a
// consistent before and after.
func (l *Ledger) Award(ctx context.Context, userID primitive.ObjectID, amount int) (*models.User, *LevelUp, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	user, err := l.store.IncrementUserXP(ctx, userID, amount)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to award xp: %w", err)
	}

	l.mirror(ctx, user)

	previousLevel := LevelForXP(user.XP - amount)
	if user.Level <= previousLevel {
		return user, nil, nil
	}
	return user, &LevelUp{
		From:   previousLevel,
		To:     user.Level,
		Reward: LevelReward(user, user.Level),
	}, nil
}

// Status reads the user's XP from persistent storage, falling back to
// the cached mirror when the store is unreachable.
func (l *Ledger) Status(ctx context.Context, userID primitive.ObjectID) (*Status, error) {
	user, err := l.store.FindUser(ctx, bson.M{"_id": userID})
	if err == nil {
		l.mirror(ctx, user)
		return statusFor(user.XP, user.Level, false), nil
	}

	cached, cacheErr := l.cache.Get(ctx, cacheKey(userID))
	if cacheErr != nil {
		return nil, fmt.Errorf("failed to read xp status: %w", err)
	}
	entry, ok := cached.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("failed to read xp status: %w", err)
	}

	// JSON numbers decode as float64.
	total, _ := entry["xp"].(float64)
	level, _ := entry["level"].(float64)
	return statusFor(int(total), int(level), true), nil
}

// SetReward records the user's self-defined reward for reaching the
// given level. Rewards are keyed by decimal level strings.
func (l *Ledger) SetReward(ctx context.Context, userID primitive.ObjectID, level int, reward string) error {
	if level < 1 {
		return errors.New("level must be at least 1")
	}
	if reward == "" {
		return errors.New("reward cannot be empty")
	}

	_, err := l.store.UpdateUser(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"reward_map." + strconv.Itoa(level): reward}})
	if err != nil {
		return fmt.Errorf("failed to save reward: %w", err)
	}
	return nil
}

// LevelReward resolves the reward to suggest for a level: the user's
// own entry if present, then the built-in per-level table, then the
// generic default.
func LevelReward(user *models.User, level int) string {
	if user != nil {
		if reward, ok := user.RewardMap[strconv.Itoa(level)]; ok && reward != "" {
			return reward
		}
	}
	if reward, ok := builtinRewards[level]; ok {
		return reward
	}
	return DefaultReward
}

// mirror writes the user's XP snapshot into the cache. Mirroring is
// best effort and never fails the caller.
func (l *Ledger) mirror(ctx context.Context, user *models.User) {
	if l.cache == nil {
		return
	}
	_ = l.cache.Set(ctx, cacheKey(user.ID), map[string]interface{}{
		"xp":    user.XP,
		"level": user.Level,
	})
}

func statusFor(total, level int, fromCache bool) *Status {
	return &Status{
		XP:          total,
		Level:       level,
		XPIntoLevel: total % LevelThreshold,
		NextLevelAt: (level) * LevelThreshold,
		FromCache:   fromCache,
	}
}
