package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/srkaul/goalmaster/backend/models"
	"github.com/srkaul/goalmaster/backend/premium"
	"github.com/srkaul/goalmaster/backend/progress"
	"github.com/srkaul/goalmaster/backend/reminders"
	cache "github.com/srkaul/goalmaster/backend/storage/cache"
	storage "github.com/srkaul/goalmaster/backend/storage/persistent"
	"github.com/srkaul/goalmaster/backend/xp"
)

func newTestService(t *testing.T, retainArchivedGoals bool) (*Service, *storage.MemoryStorage, primitive.ObjectID) {
	t.Helper()
	store := storage.NewMemoryStorage()
	c := cache.NewMemoryCache()
	user, err := store.AddUser(context.Background(), &models.User{
		Email:        "test@example.com",
		PasswordHash: "hash",
		Level:        1,
	})
	assert.NoError(t, err)

	ledger := xp.NewLedger(store, c)
	premiumService := premium.NewService(store, c, nil)
	service := NewService(store, c, ledger, premiumService, nil, retainArchivedGoals)
	return service, store, user.ID
}

func makePremium(t *testing.T, store *storage.MemoryStorage, userID primitive.ObjectID) {
	t.Helper()
	_, err := store.UpdateUser(context.Background(),
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_premium": true}})
	assert.NoError(t, err)
}

func addGoal(t *testing.T, service *Service, userID primitive.ObjectID, what string) *models.Goal {
	t.Helper()
	goal, err := service.CreateGoal(context.Background(), userID, models.Answers{What: what}, primitive.ObjectID{})
	assert.NoError(t, err)
	return goal
}

func addStep(t *testing.T, service *Service, userID, goalID primitive.ObjectID, text string) *models.Step {
	t.Helper()
	step, err := service.AddStep(context.Background(), userID, goalID, text, models.UrgencyMedium, "")
	assert.NoError(t, err)
	return step
}

func TestCreateCategoryValidation(t *testing.T) {
	service, _, userID := newTestService(t, true)

	_, err := service.CreateCategory(context.Background(), userID, "", "#fff")
	assert.Error(t, err)

	category, err := service.CreateCategory(context.Background(), userID, "Health", "#00ff00")
	assert.NoError(t, err)
	assert.Equal(t, "Health", category.Name)

	_, err = service.CreateCategory(context.Background(), userID, "Health", "#00ff00")
	assert.ErrorContains(t, err, "already exists")
}

func TestCategoryLimitForFreeTier(t *testing.T) {
	service, store, userID := newTestService(t, true)

	for i := 0; i < FreeMaxCategories; i++ {
		_, err := service.CreateCategory(context.Background(), userID, fmt.Sprintf("Category %d", i), "")
		assert.NoError(t, err)
	}

	_, err := service.CreateCategory(context.Background(), userID, "One more", "")
	assert.ErrorIs(t, err, ErrCategoryLimit)

	makePremium(t, store, userID)
	_, err = service.CreateCategory(context.Background(), userID, "One more", "")
	assert.NoError(t, err)
}

func TestDeleteCategoryKeepsGoalSnapshot(t *testing.T) {
	service, _, userID := newTestService(t, true)

	category, err := service.CreateCategory(context.Background(), userID, "Fitness", "#ff0000")
	assert.NoError(t, err)

	goal, err := service.CreateGoal(context.Background(), userID, models.Answers{What: "Run a marathon"}, category.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Fitness", goal.CategoryName)
	assert.Equal(t, "#ff0000", goal.CategoryColor)

	assert.NoError(t, service.DeleteCategory(context.Background(), userID, category.ID))

	goals, err := service.ListGoals(context.Background(), userID, false)
	assert.NoError(t, err)
	if assert.Len(t, goals, 1) {
		assert.Equal(t, "Fitness", goals[0].CategoryName)
	}
}

func TestCreateGoalRequiresAnAnswer(t *testing.T) {
	service, _, userID := newTestService(t, true)

	_, err := service.CreateGoal(context.Background(), userID, models.Answers{}, primitive.ObjectID{})
	assert.Error(t, err)
}

// recordingProducer keeps published reminder bodies in memory.
type recordingProducer struct {
	published [][]byte
}

func (p *recordingProducer) Publish(body []byte) error {
	p.published = append(p.published, body)
	return nil
}

func TestCreateGoalSchedulesReminders(t *testing.T) {
	service, _, userID := newTestService(t, true)
	producer := &recordingProducer{}
	service.queue = &reminders.Queue{Producers: []reminders.Producer{producer}}

	// No "when" answer, nothing to schedule.
	_, err := service.CreateGoal(context.Background(), userID, models.Answers{What: "Read more"}, primitive.ObjectID{})
	assert.NoError(t, err)
	assert.Empty(t, producer.published)

	answers := models.Answers{What: "Run a 5K", When: "2026-09-15T18:00:00Z"}
	goal, err := service.CreateGoal(context.Background(), userID, answers, primitive.ObjectID{})
	assert.NoError(t, err)
	assert.Len(t, producer.published, 2)

	var goalMsg, motivationalMsg reminders.ReminderMessage
	assert.NoError(t, json.Unmarshal(producer.published[0], &goalMsg))
	assert.Equal(t, "goal_"+goal.ID.Hex(), goalMsg.Id)
	assert.Equal(t, "2026-09-15T18:00:00Z", goalMsg.DeliverAt)

	assert.NoError(t, json.Unmarshal(producer.published[1], &motivationalMsg))
	assert.Equal(t, "You've got this!", motivationalMsg.Title)
	assert.Equal(t, userID.Hex(), motivationalMsg.UserId)
}

func TestGoalLimitForFreeTier(t *testing.T) {
	service, store, userID := newTestService(t, true)

	for i := 0; i < FreeMaxGoals; i++ {
		addGoal(t, service, userID, fmt.Sprintf("Goal %d", i))
	}

	_, err := service.CreateGoal(context.Background(), userID, models.Answers{What: "One more"}, primitive.ObjectID{})
	assert.ErrorIs(t, err, ErrGoalLimit)

	makePremium(t, store, userID)
	_, err = service.CreateGoal(context.Background(), userID, models.Answers{What: "One more"}, primitive.ObjectID{})
	assert.NoError(t, err)
}

func TestUpdateGoalCategorySnapshot(t *testing.T) {
	service, _, userID := newTestService(t, true)

	category, err := service.CreateCategory(context.Background(), userID, "Career", "#0000ff")
	assert.NoError(t, err)

	goal := addGoal(t, service, userID, "Get promoted")
	updated, err := service.UpdateGoal(context.Background(), userID, goal.ID, GoalUpdate{CategoryID: &category.ID})
	assert.NoError(t, err)
	assert.Equal(t, "Career", updated.CategoryName)

	none := primitive.ObjectID{}
	updated, err = service.UpdateGoal(context.Background(), userID, goal.ID, GoalUpdate{CategoryID: &none})
	assert.NoError(t, err)
	assert.Empty(t, updated.CategoryName)
}

func TestDeleteGoalRemovesItsSteps(t *testing.T) {
	service, store, userID := newTestService(t, true)

	goal := addGoal(t, service, userID, "Tidy the garage")
	addStep(t, service, userID, goal.ID, "Sort the shelves")
	addStep(t, service, userID, goal.ID, "Donate old tools")

	assert.NoError(t, service.DeleteGoal(context.Background(), userID, goal.ID))

	steps, err := store.FindSteps(context.Background(), bson.M{"goal_id": goal.ID})
	assert.NoError(t, err)
	assert.Empty(t, steps)
}

func TestAddStepAssignsContiguousOrder(t *testing.T) {
	service, _, userID := newTestService(t, true)

	goal := addGoal(t, service, userID, "Write a novel")
	for i := 0; i < 3; i++ {
		step := addStep(t, service, userID, goal.ID, fmt.Sprintf("Chapter %d", i+1))
		assert.Equal(t, i, step.Order)
	}
}

func TestAddStepValidation(t *testing.T) {
	service, _, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Write a novel")

	_, err := service.AddStep(context.Background(), userID, goal.ID, "", models.UrgencyHigh, "")
	assert.Error(t, err)

	_, err = service.AddStep(context.Background(), userID, goal.ID, "Outline", "Urgent", "")
	assert.ErrorContains(t, err, "urgency")

	_, err = service.AddStep(context.Background(), userID, goal.ID, "Outline", models.UrgencyHigh, "next tuesday")
	assert.ErrorContains(t, err, "deadline")
}

func TestStepLimitForFreeTier(t *testing.T) {
	service, store, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Learn piano")

	for i := 0; i < FreeMaxStepsPerGoal; i++ {
		addStep(t, service, userID, goal.ID, fmt.Sprintf("Lesson %d", i+1))
	}

	_, err := service.AddStep(context.Background(), userID, goal.ID, "One more", "", "")
	assert.ErrorIs(t, err, ErrStepLimit)

	makePremium(t, store, userID)
	_, err = service.AddStep(context.Background(), userID, goal.ID, "One more", "", "")
	assert.NoError(t, err)
}

func TestToggleStepAwardsXPOnce(t *testing.T) {
	service, store, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Meditate daily")
	step := addStep(t, service, userID, goal.ID, "Morning session")
	addStep(t, service, userID, goal.ID, "Evening session")

	result, err := service.ToggleStep(context.Background(), userID, step.ID)
	assert.NoError(t, err)
	assert.True(t, result.Step.Completed)
	assert.Equal(t, xp.StepCompletionXP, result.XPAwarded)
	assert.False(t, result.GoalComplete)

	// Un-complete: no award, no clawback.
	result, err = service.ToggleStep(context.Background(), userID, step.ID)
	assert.NoError(t, err)
	assert.False(t, result.Step.Completed)
	assert.Zero(t, result.XPAwarded)

	// Re-complete: already awarded.
	result, err = service.ToggleStep(context.Background(), userID, step.ID)
	assert.NoError(t, err)
	assert.True(t, result.Step.Completed)
	assert.Zero(t, result.XPAwarded)

	user, err := store.FindUser(context.Background(), bson.M{"_id": userID})
	assert.NoError(t, err)
	assert.Equal(t, xp.StepCompletionXP, user.XP)
}

func TestToggleStepSignalsGoalCompletion(t *testing.T) {
	service, _, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Read a book")
	first := addStep(t, service, userID, goal.ID, "Chapters 1-5")
	second := addStep(t, service, userID, goal.ID, "Chapters 6-10")

	result, err := service.ToggleStep(context.Background(), userID, first.ID)
	assert.NoError(t, err)
	assert.False(t, result.GoalComplete)

	result, err = service.ToggleStep(context.Background(), userID, second.ID)
	assert.NoError(t, err)
	assert.True(t, result.GoalComplete)

	// Signal only: the goal is not archived automatically.
	goals, err := service.ListGoals(context.Background(), userID, false)
	assert.NoError(t, err)
	assert.Len(t, goals, 1)
}

func TestMoveStepSwapsNeighbors(t *testing.T) {
	service, _, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Plan a trip")
	first := addStep(t, service, userID, goal.ID, "Book flights")
	second := addStep(t, service, userID, goal.ID, "Book hotel")
	third := addStep(t, service, userID, goal.ID, "Pack bags")

	assert.NoError(t, service.MoveStep(context.Background(), userID, second.ID, MoveUp))

	steps, err := service.ListSteps(context.Background(), userID, goal.ID, progress.SortModeDefault)
	assert.NoError(t, err)
	if assert.Len(t, steps, 3) {
		assert.Equal(t, second.ID, steps[0].ID)
		assert.Equal(t, first.ID, steps[1].ID)
		assert.Equal(t, third.ID, steps[2].ID)
		for i, step := range steps {
			assert.Equal(t, i, step.Order)
		}
	}
}

func TestMoveStepPastBoundaryIsNoOp(t *testing.T) {
	service, _, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Plan a trip")
	first := addStep(t, service, userID, goal.ID, "Book flights")
	last := addStep(t, service, userID, goal.ID, "Pack bags")

	assert.NoError(t, service.MoveStep(context.Background(), userID, first.ID, MoveUp))
	assert.NoError(t, service.MoveStep(context.Background(), userID, last.ID, MoveDown))

	steps, err := service.ListSteps(context.Background(), userID, goal.ID, progress.SortModeDefault)
	assert.NoError(t, err)
	if assert.Len(t, steps, 2) {
		assert.Equal(t, first.ID, steps[0].ID)
		assert.Equal(t, last.ID, steps[1].ID)
	}
}

func TestDeleteStepCompactsOrder(t *testing.T) {
	service, _, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Bake bread")
	addStep(t, service, userID, goal.ID, "Mix dough")
	middle := addStep(t, service, userID, goal.ID, "First proof")
	addStep(t, service, userID, goal.ID, "Bake")

	assert.NoError(t, service.DeleteStep(context.Background(), userID, middle.ID))

	steps, err := service.ListSteps(context.Background(), userID, goal.ID, progress.SortModeDefault)
	assert.NoError(t, err)
	if assert.Len(t, steps, 2) {
		assert.Equal(t, 0, steps[0].Order)
		assert.Equal(t, 1, steps[1].Order)
	}
}

func completeAllSteps(t *testing.T, service *Service, userID, goalID primitive.ObjectID) {
	t.Helper()
	steps, err := service.ListSteps(context.Background(), userID, goalID, progress.SortModeDefault)
	assert.NoError(t, err)
	for _, step := range steps {
		if !step.Completed {
			_, err := service.ToggleStep(context.Background(), userID, step.ID)
			assert.NoError(t, err)
		}
	}
}

func TestArchiveRequiresAllStepsComplete(t *testing.T) {
	service, _, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Learn Spanish")

	_, err := service.Archive(context.Background(), userID, goal.ID)
	assert.ErrorContains(t, err, "at least one step")

	step := addStep(t, service, userID, goal.ID, "Finish course")
	_, err = service.Archive(context.Background(), userID, goal.ID)
	assert.ErrorContains(t, err, "all steps must be completed")

	_, err = service.ToggleStep(context.Background(), userID, step.ID)
	assert.NoError(t, err)

	completed, err := service.Archive(context.Background(), userID, goal.ID)
	assert.NoError(t, err)
	assert.Equal(t, goal.ID, completed.GoalID)
	if assert.Len(t, completed.Steps, 1) {
		assert.Equal(t, "Finish course", completed.Steps[0].Text)
	}
}

func TestArchiveRetainsGoalWhenConfigured(t *testing.T) {
	service, _, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Learn Spanish")
	addStep(t, service, userID, goal.ID, "Finish course")
	completeAllSteps(t, service, userID, goal.ID)

	_, err := service.Archive(context.Background(), userID, goal.ID)
	assert.NoError(t, err)

	active, err := service.ListGoals(context.Background(), userID, false)
	assert.NoError(t, err)
	assert.Empty(t, active)

	all, err := service.ListGoals(context.Background(), userID, true)
	assert.NoError(t, err)
	if assert.Len(t, all, 1) {
		assert.True(t, all[0].Completed)
	}
}

func TestArchiveRemovesGoalWhenNotRetaining(t *testing.T) {
	service, _, userID := newTestService(t, false)
	goal := addGoal(t, service, userID, "Learn Spanish")
	addStep(t, service, userID, goal.ID, "Finish course")
	completeAllSteps(t, service, userID, goal.ID)

	_, err := service.Archive(context.Background(), userID, goal.ID)
	assert.NoError(t, err)

	all, err := service.ListGoals(context.Background(), userID, true)
	assert.NoError(t, err)
	assert.Empty(t, all)
}

func TestReopenRetainedGoal(t *testing.T) {
	service, _, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Learn Spanish")
	addStep(t, service, userID, goal.ID, "Finish course")
	completeAllSteps(t, service, userID, goal.ID)

	completed, err := service.Archive(context.Background(), userID, goal.ID)
	assert.NoError(t, err)

	reopened, err := service.Reopen(context.Background(), userID, completed.ID)
	assert.NoError(t, err)
	assert.Equal(t, goal.ID, reopened.ID)
	assert.False(t, reopened.Completed)

	archived, err := service.ListCompleted(context.Background(), userID)
	assert.NoError(t, err)
	assert.Empty(t, archived)
}

func TestReopenRebuildsDeletedGoal(t *testing.T) {
	service, _, userID := newTestService(t, false)
	goal := addGoal(t, service, userID, "Learn Spanish")
	addStep(t, service, userID, goal.ID, "Finish course")
	completeAllSteps(t, service, userID, goal.ID)

	completed, err := service.Archive(context.Background(), userID, goal.ID)
	assert.NoError(t, err)

	reopened, err := service.Reopen(context.Background(), userID, completed.ID)
	assert.NoError(t, err)
	assert.NotEqual(t, goal.ID, reopened.ID)
	assert.Equal(t, "Learn Spanish", reopened.Answers.What)

	steps, err := service.ListSteps(context.Background(), userID, reopened.ID, progress.SortModeDefault)
	assert.NoError(t, err)
	if assert.Len(t, steps, 1) {
		assert.True(t, steps[0].Completed)
		// Rebuilt steps never re-award XP.
		assert.True(t, steps[0].XPAwarded)
	}
}

func TestSaveReflectionIsPremiumGated(t *testing.T) {
	service, store, userID := newTestService(t, true)
	goal := addGoal(t, service, userID, "Learn Spanish")
	addStep(t, service, userID, goal.ID, "Finish course")
	completeAllSteps(t, service, userID, goal.ID)
	completed, err := service.Archive(context.Background(), userID, goal.ID)
	assert.NoError(t, err)

	err = service.SaveReflection(context.Background(), userID, completed.ID, "Consistency was the key.")
	assert.ErrorIs(t, err, ErrPremiumOnly)

	makePremium(t, store, userID)
	err = service.SaveReflection(context.Background(), userID, completed.ID, "Consistency was the key.")
	assert.NoError(t, err)

	archived, err := service.ListCompleted(context.Background(), userID)
	assert.NoError(t, err)
	if assert.Len(t, archived, 1) {
		assert.Equal(t, "Consistency was the key.", archived[0].Reflection)
	}
}

func TestReflectionDraftLifecycle(t *testing.T) {
	service, store, userID := newTestService(t, true)
	makePremium(t, store, userID)

	goal := addGoal(t, service, userID, "Learn Spanish")
	addStep(t, service, userID, goal.ID, "Finish course")
	completeAllSteps(t, service, userID, goal.ID)
	completed, err := service.Archive(context.Background(), userID, goal.ID)
	assert.NoError(t, err)

	assert.Empty(t, service.ReflectionDraft(context.Background(), completed.ID))

	assert.NoError(t, service.SaveReflectionDraft(context.Background(), completed.ID, "Half-written thought"))
	assert.Equal(t, "Half-written thought", service.ReflectionDraft(context.Background(), completed.ID))

	assert.NoError(t, service.SaveReflection(context.Background(), userID, completed.ID, "Final thought"))
	assert.Empty(t, service.ReflectionDraft(context.Background(), completed.ID))
}

func TestProgressSummaryAndBreakdown(t *testing.T) {
	service, _, userID := newTestService(t, true)

	category, err := service.CreateCategory(context.Background(), userID, "Health", "#00ff00")
	assert.NoError(t, err)

	categorized, err := service.CreateGoal(context.Background(), userID, models.Answers{What: "Run 5k"}, category.ID)
	assert.NoError(t, err)
	uncategorized := addGoal(t, service, userID, "Read more")

	done := addStep(t, service, userID, categorized.ID, "Couch to 5k week 1")
	addStep(t, service, userID, categorized.ID, "Couch to 5k week 2")
	_, err = service.ToggleStep(context.Background(), userID, done.ID)
	assert.NoError(t, err)

	summaries, breakdown, err := service.Progress(context.Background(), userID, progress.SortModeDefault, "")
	assert.NoError(t, err)
	if assert.Len(t, summaries, 2) {
		assert.Equal(t, "Health", summaries[0].Name)
		assert.Equal(t, 50, summaries[0].ProgressPercent)
		assert.Equal(t, progress.Uncategorized, summaries[1].Name)
	}
	if assert.Len(t, breakdown, 2) {
		assert.Equal(t, categorized.ID, breakdown[0].Goal.ID)
		assert.Equal(t, uncategorized.ID, breakdown[1].Goal.ID)
	}

	_, filtered, err := service.Progress(context.Background(), userID, progress.SortModeDefault, "Health")
	assert.NoError(t, err)
	if assert.Len(t, filtered, 1) {
		assert.Equal(t, categorized.ID, filtered[0].Goal.ID)
	}
}
