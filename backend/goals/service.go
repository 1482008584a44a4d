package goals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/srkaul/goalmaster/backend/models"
	"github.com/srkaul/goalmaster/backend/premium"
	"github.com/srkaul/goalmaster/backend/progress"
	"github.com/srkaul/goalmaster/backend/reminders"
	cache "github.com/srkaul/goalmaster/backend/storage/cache"
	storage "github.com/srkaul/goalmaster/backend/storage/persistent"
	"github.com/srkaul/goalmaster/backend/xp"
	"github.com/srkaul/goalmaster/lib/utils"
)

// Free-tier limits. Premium users are unlimited.
const (
	FreeMaxGoals        = 3
	FreeMaxCategories   = 3
	FreeMaxStepsPerGoal = 5
)

var (
	ErrGoalLimit     = errors.New("free accounts are limited to 3 active goals, upgrade to premium for unlimited goals")
	ErrCategoryLimit = errors.New("free accounts are limited to 3 categories, upgrade to premium for unlimited categories")
	ErrStepLimit     = errors.New("free accounts are limited to 5 steps per goal, upgrade to premium for unlimited steps")
	ErrPremiumOnly   = errors.New("saving reflections is a premium feature")
	ErrNotFound      = errors.New("not found")
)

// MoveDirection is the requested direction of a step move.
type MoveDirection string

const (
	MoveUp   MoveDirection = "up"
	MoveDown MoveDirection = "down"
)

// StepUpdate carries the editable fields of a step. Nil fields are left
// unchanged.
type StepUpdate struct {
	Text     *string
	Urgency  *string
	Deadline *string
}

// GoalUpdate carries the editable fields of a goal. Nil fields are left
// unchanged.
type GoalUpdate struct {
	Answers    *models.Answers
	CategoryID *primitive.ObjectID
}

// ToggleResult reports the outcome of flipping a step's completion.
type ToggleResult struct {
	Step         *models.Step `json:"step"`
	GoalComplete bool         `json:"goal_complete"`
	XPAwarded    int          `json:"xp_awarded"`
	LevelUp      *xp.LevelUp  `json:"level_up,omitempty"`
}

// Service implements the goal, category, and step operations for one
// authenticated user at a time. It owns the archive and reflection flows
// and routes XP through the ledger. The reminder queue is optional;
// scheduling failures never fail the triggering operation.
type Service struct {
	store   storage.StorageInterface
	cache   cache.CacheInterface
	ledger  *xp.Ledger
	premium *premium.Service
	queue   *reminders.Queue

	// retainArchivedGoals keeps archived goals in the goals collection
	// with completed=true instead of deleting them.
	retainArchivedGoals bool
}

func NewService(store storage.StorageInterface, c cache.CacheInterface, ledger *xp.Ledger, premiumService *premium.Service, queue *reminders.Queue, retainArchivedGoals bool) *Service {
	return &Service{
		store:               store,
		cache:               c,
		ledger:              ledger,
		premium:             premiumService,
		queue:               queue,
		retainArchivedGoals: retainArchivedGoals,
	}
}

func (s *Service) isPremium(ctx context.Context, userID primitive.ObjectID) bool {
	if s.premium == nil {
		return false
	}
	return s.premium.Status(ctx, userID)
}

// CreateCategory adds a category for the user. Names must be non-empty
// and unique per user; free accounts are capped at FreeMaxCategories.
func (s *Service) CreateCategory(ctx context.Context, userID primitive.ObjectID, name, colorTag string) (*models.Category, error) {
	if name == "" {
		return nil, errors.New("category name cannot be empty")
	}

	if !s.isPremium(ctx, userID) {
		count, err := s.store.CategoryCount(ctx, bson.M{"owner_id": userID})
		if err != nil {
			return nil, fmt.Errorf("failed to count categories: %w", err)
		}
		if count >= FreeMaxCategories {
			return nil, ErrCategoryLimit
		}
	}

	return s.store.AddCategory(ctx, &models.Category{
		OwnerID:   userID,
		Name:      name,
		ColorTag:  colorTag,
		CreatedAt: time.Now(),
	})
}

func (s *Service) ListCategories(ctx context.Context, userID primitive.ObjectID) ([]models.Category, error) {
	return s.store.FindCategories(ctx, bson.M{"owner_id": userID})
}

// DeleteCategory removes a category. Goals keep their denormalized
// category snapshot, so nothing cascades.
func (s *Service) DeleteCategory(ctx context.Context, userID, categoryID primitive.ObjectID) error {
	result, err := s.store.DeleteCategory(ctx, bson.M{"_id": categoryID, "owner_id": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("category %w", ErrNotFound)
	}
	return nil
}

// CreateGoal adds a goal for the user. At least one answer must be
// non-empty. When categoryID is set, the category's name and color are
// snapshotted onto the goal. Free accounts are capped at FreeMaxGoals
// active goals.
func (s *Service) CreateGoal(ctx context.Context, userID primitive.ObjectID, answers models.Answers, categoryID primitive.ObjectID) (*models.Goal, error) {
	if !answers.HasAny() {
		return nil, errors.New("at least one answer must be filled in")
	}

	if !s.isPremium(ctx, userID) {
		count, err := s.store.GoalCount(ctx, bson.M{"owner_id": userID, "completed": false})
		if err != nil {
			return nil, fmt.Errorf("failed to count goals: %w", err)
		}
		if count >= FreeMaxGoals {
			return nil, ErrGoalLimit
		}
	}

	goal := &models.Goal{
		OwnerID:   userID,
		Answers:   answers,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if !categoryID.IsZero() {
		categories, err := s.store.FindCategories(ctx, bson.M{"_id": categoryID, "owner_id": userID})
		if err != nil {
			return nil, err
		}
		if len(categories) == 0 {
			return nil, fmt.Errorf("category %w", ErrNotFound)
		}
		goal.CategoryID = categoryID
		goal.CategoryName = categories[0].Name
		goal.CategoryColor = categories[0].ColorTag
	}

	goal, err := s.store.AddGoal(ctx, goal)
	if err != nil {
		return nil, err
	}

	if answers.When != "" && s.queue != nil {
		if err := reminders.ProcessReminder(reminders.GoalReminder(userID.Hex(), goal), s.queue); err != nil {
			log.Printf("failed to schedule goal reminder: %v", err)
		}
		if err := reminders.ProcessReminder(reminders.MotivationalReminder(userID.Hex(), time.Now()), s.queue); err != nil {
			log.Printf("failed to schedule motivational reminder: %v", err)
		}
	}

	return goal, nil
}

// ListGoals returns the user's goals, optionally including archived ones.
func (s *Service) ListGoals(ctx context.Context, userID primitive.ObjectID, includeCompleted bool) ([]models.Goal, error) {
	filter := bson.M{"owner_id": userID}
	if !includeCompleted {
		filter["completed"] = false
	}
	return s.store.FindGoals(ctx, filter)
}

func (s *Service) findGoal(ctx context.Context, userID, goalID primitive.ObjectID) (*models.Goal, error) {
	found, err := s.store.FindGoals(ctx, bson.M{"_id": goalID, "owner_id": userID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("goal %w", ErrNotFound)
	}
	return &found[0], nil
}

// UpdateGoal edits a goal's answers or category. Changing the category
// refreshes the snapshot; a zero category ID clears it.
func (s *Service) UpdateGoal(ctx context.Context, userID, goalID primitive.ObjectID, update GoalUpdate) (*models.Goal, error) {
	if _, err := s.findGoal(ctx, userID, goalID); err != nil {
		return nil, err
	}

	set := bson.M{"updated_at": time.Now()}
	if update.Answers != nil {
		if !update.Answers.HasAny() {
			return nil, errors.New("at least one answer must be filled in")
		}
		set["answers"] = *update.Answers
	}
	if update.CategoryID != nil {
		if update.CategoryID.IsZero() {
			set["category_id"] = primitive.ObjectID{}
			set["category_name"] = ""
			set["category_color"] = ""
		} else {
			categories, err := s.store.FindCategories(ctx, bson.M{"_id": *update.CategoryID, "owner_id": userID})
			if err != nil {
				return nil, err
			}
			if len(categories) == 0 {
				return nil, fmt.Errorf("category %w", ErrNotFound)
			}
			set["category_id"] = *update.CategoryID
			set["category_name"] = categories[0].Name
			set["category_color"] = categories[0].ColorTag
		}
	}

	if _, err := s.store.UpdateGoal(ctx, bson.M{"_id": goalID, "owner_id": userID}, bson.M{"$set": set}); err != nil {
		return nil, err
	}
	return s.findGoal(ctx, userID, goalID)
}

// DeleteGoal removes a goal and all of its steps.
func (s *Service) DeleteGoal(ctx context.Context, userID, goalID primitive.ObjectID) error {
	result, err := s.store.DeleteGoal(ctx, bson.M{"_id": goalID, "owner_id": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("goal %w", ErrNotFound)
	}
	return nil
}

func validUrgency(urgency string) bool {
	switch urgency {
	case "", models.UrgencyHigh, models.UrgencyMedium, models.UrgencyLow:
		return true
	}
	return false
}

// AddStep appends a step to a goal. The new step's order is the current
// step count, keeping orders a contiguous [0..n-1]. Free accounts are
// capped at FreeMaxStepsPerGoal. A deadline schedules a reminder.
func (s *Service) AddStep(ctx context.Context, userID, goalID primitive.ObjectID, text, urgency, deadline string) (*models.Step, error) {
	if text == "" {
		return nil, errors.New("step text cannot be empty")
	}
	if !validUrgency(urgency) {
		return nil, errors.New("urgency must be High, Medium, or Low")
	}
	if !utils.ValidateDeadline(deadline) {
		return nil, errors.New("deadline must be an RFC 3339 timestamp")
	}

	goal, err := s.findGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}

	count, err := s.store.StepCount(ctx, bson.M{"goal_id": goalID})
	if err != nil {
		return nil, fmt.Errorf("failed to count steps: %w", err)
	}
	if !s.isPremium(ctx, userID) && count >= FreeMaxStepsPerGoal {
		return nil, ErrStepLimit
	}

	step, err := s.store.AddStep(ctx, &models.Step{
		OwnerID:       userID,
		GoalID:        goalID,
		CategoryName:  goal.CategoryName,
		CategoryColor: goal.CategoryColor,
		Text:          text,
		Urgency:       urgency,
		Deadline:      deadline,
		Order:         int(count),
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return nil, err
	}

	if deadline != "" && s.queue != nil {
		if err := reminders.ProcessReminder(reminders.StepReminder(userID.Hex(), step), s.queue); err != nil {
			log.Printf("failed to schedule step reminder: %v", err)
		}
	}

	return step, nil
}

// ListSteps returns a goal's steps in the requested sort order. Sorting
// is presentational and never rewrites the persisted order.
func (s *Service) ListSteps(ctx context.Context, userID, goalID primitive.ObjectID, mode progress.SortMode) ([]models.Step, error) {
	if _, err := s.findGoal(ctx, userID, goalID); err != nil {
		return nil, err
	}
	steps, err := s.store.FindSteps(ctx, bson.M{"goal_id": goalID})
	if err != nil {
		return nil, err
	}
	return progress.SortSteps(steps, mode), nil
}

func (s *Service) findStep(ctx context.Context, userID, stepID primitive.ObjectID) (*models.Step, error) {
	found, err := s.store.FindSteps(ctx, bson.M{"_id": stepID, "owner_id": userID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("step %w", ErrNotFound)
	}
	return &found[0], nil
}

// UpdateStep edits a step's text, urgency, or deadline.
func (s *Service) UpdateStep(ctx context.Context, userID, stepID primitive.ObjectID, update StepUpdate) (*models.Step, error) {
	if _, err := s.findStep(ctx, userID, stepID); err != nil {
		return nil, err
	}

	set := bson.M{}
	if update.Text != nil {
		if *update.Text == "" {
			return nil, errors.New("step text cannot be empty")
		}
		set["text"] = *update.Text
	}
	if update.Urgency != nil {
		if !validUrgency(*update.Urgency) {
			return nil, errors.New("urgency must be High, Medium, or Low")
		}
		set["urgency"] = *update.Urgency
	}
	if update.Deadline != nil {
		if !utils.ValidateDeadline(*update.Deadline) {
			return nil, errors.New("deadline must be an RFC 3339 timestamp")
		}
		set["deadline"] = *update.Deadline
	}
	if len(set) == 0 {
		return s.findStep(ctx, userID, stepID)
	}

	if _, err := s.store.UpdateStep(ctx, bson.M{"_id": stepID, "owner_id": userID}, bson.M{"$set": set}); err != nil {
		return nil, err
	}
	return s.findStep(ctx, userID, stepID)
}

// DeleteStep removes a step and compacts the remaining orders back to a
// contiguous [0..n-1].
func (s *Service) DeleteStep(ctx context.Context, userID, stepID primitive.ObjectID) error {
	step, err := s.findStep(ctx, userID, stepID)
	if err != nil {
		return err
	}

	result, err := s.store.DeleteStep(ctx, bson.M{"_id": stepID, "owner_id": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("step %w", ErrNotFound)
	}

	remaining, err := s.store.FindSteps(ctx, bson.M{"goal_id": step.GoalID})
	if err != nil {
		return err
	}
	remaining = progress.SortSteps(remaining, progress.SortModeDefault)

	var orders []storage.StepOrder
	for i, sibling := range remaining {
		if sibling.Order != i {
			orders = append(orders, storage.StepOrder{StepID: sibling.ID, Order: i})
		}
	}
	if len(orders) == 0 {
		return nil
	}
	return s.store.ReorderSteps(ctx, orders)
}

// MoveStep swaps a step's order with its neighbor in the given
// direction. Moves past either end are a no-op. The swap is written
// both-or-neither, so orders stay a contiguous permutation.
func (s *Service) MoveStep(ctx context.Context, userID, stepID primitive.ObjectID, direction MoveDirection) error {
	if direction != MoveUp && direction != MoveDown {
		return errors.New("direction must be up or down")
	}

	step, err := s.findStep(ctx, userID, stepID)
	if err != nil {
		return err
	}

	siblings, err := s.store.FindSteps(ctx, bson.M{"goal_id": step.GoalID})
	if err != nil {
		return err
	}
	siblings = progress.SortSteps(siblings, progress.SortModeDefault)

	index := -1
	for i, sibling := range siblings {
		if sibling.ID == stepID {
			index = i
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("step %w", ErrNotFound)
	}

	neighbor := index - 1
	if direction == MoveDown {
		neighbor = index + 1
	}
	if neighbor < 0 || neighbor >= len(siblings) {
		return nil
	}

	return s.store.ReorderSteps(ctx, []storage.StepOrder{
		{StepID: siblings[index].ID, Order: siblings[neighbor].Order},
		{StepID: siblings[neighbor].ID, Order: siblings[index].Order},
	})
}

// ToggleStep flips a step's completion. Completing a step for the first
// time awards XP through the ledger; un-completing never awards and
// never claws back. The result signals, but does not perform, goal
// archiving when every sibling ends up complete.
func (s *Service) ToggleStep(ctx context.Context, userID, stepID primitive.ObjectID) (*ToggleResult, error) {
	step, err := s.findStep(ctx, userID, stepID)
	if err != nil {
		return nil, err
	}

	newValue := !step.Completed
	set := bson.M{"completed": newValue}

	awardXP := newValue && !step.XPAwarded
	if awardXP {
		set["xp_awarded"] = true
	}

	if _, err := s.store.UpdateStep(ctx, bson.M{"_id": stepID, "owner_id": userID}, bson.M{"$set": set}); err != nil {
		return nil, err
	}
	step.Completed = newValue

	result := &ToggleResult{Step: step}

	if awardXP {
		step.XPAwarded = true
		_, levelUp, err := s.ledger.Award(ctx, userID, xp.StepCompletionXP)
		if err != nil {
			return nil, err
		}
		result.XPAwarded = xp.StepCompletionXP
		result.LevelUp = levelUp

		if levelUp != nil && s.queue != nil {
			if err := reminders.ProcessReminder(reminders.RewardReminder(userID.Hex(), levelUp.To, levelUp.Reward), s.queue); err != nil {
				log.Printf("failed to schedule reward reminder: %v", err)
			}
		}
	}

	siblings, err := s.store.FindSteps(ctx, bson.M{"goal_id": step.GoalID})
	if err != nil {
		return nil, err
	}
	result.GoalComplete = progress.GoalFullyComplete(step.GoalID, siblings, stepID, newValue)

	return result, nil
}

// Archive snapshots a fully completed goal into the completed
// collection. Every step must be complete and the goal must have at
// least one. Depending on configuration the goal itself is either kept
// with completed=true or removed along with its steps.
func (s *Service) Archive(ctx context.Context, userID, goalID primitive.ObjectID) (*models.CompletedGoal, error) {
	goal, err := s.findGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	if goal.Completed {
		return nil, errors.New("goal is already archived")
	}

	steps, err := s.store.FindSteps(ctx, bson.M{"goal_id": goalID})
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, errors.New("a goal needs at least one step before it can be archived")
	}
	for _, step := range steps {
		if !step.Completed {
			return nil, errors.New("all steps must be completed before archiving")
		}
	}

	steps = progress.SortSteps(steps, progress.SortModeDefault)
	snapshots := make([]models.StepSnapshot, 0, len(steps))
	for _, step := range steps {
		snapshots = append(snapshots, models.StepSnapshot{
			Text:     step.Text,
			Urgency:  step.Urgency,
			Deadline: step.Deadline,
		})
	}

	completed, err := s.store.AddCompletedGoal(ctx, &models.CompletedGoal{
		OwnerID:       userID,
		GoalID:        goalID,
		CategoryName:  goal.CategoryName,
		CategoryColor: goal.CategoryColor,
		Answers:       goal.Answers,
		Steps:         snapshots,
		CompletedAt:   time.Now(),
	})
	if err != nil {
		return nil, err
	}

	if s.retainArchivedGoals {
		_, err = s.store.UpdateGoal(ctx,
			bson.M{"_id": goalID, "owner_id": userID},
			bson.M{"$set": bson.M{"completed": true, "updated_at": time.Now()}})
	} else {
		_, err = s.store.DeleteGoal(ctx, bson.M{"_id": goalID, "owner_id": userID})
	}
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// ListCompleted returns the user's archived goals.
func (s *Service) ListCompleted(ctx context.Context, userID primitive.ObjectID) ([]models.CompletedGoal, error) {
	return s.store.FindCompletedGoals(ctx, bson.M{"owner_id": userID})
}

func (s *Service) findCompleted(ctx context.Context, userID, completedID primitive.ObjectID) (*models.CompletedGoal, error) {
	found, err := s.store.FindCompletedGoals(ctx, bson.M{"_id": completedID, "owner_id": userID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("completed goal %w", ErrNotFound)
	}
	return &found[0], nil
}

// Reopen takes an archived goal back into the active set. When the goal
// document was retained it is flipped back to completed=false; when it
// was removed at archive time, goal and steps are rebuilt from the
// snapshot with every step still marked complete.
func (s *Service) Reopen(ctx context.Context, userID, completedID primitive.ObjectID) (*models.Goal, error) {
	snapshot, err := s.findCompleted(ctx, userID, completedID)
	if err != nil {
		return nil, err
	}

	goal, err := s.findGoal(ctx, userID, snapshot.GoalID)
	if err == nil {
		if _, err := s.store.UpdateGoal(ctx,
			bson.M{"_id": goal.ID, "owner_id": userID},
			bson.M{"$set": bson.M{"completed": false, "updated_at": time.Now()}}); err != nil {
			return nil, err
		}
		goal.Completed = false
	} else {
		goal, err = s.store.AddGoal(ctx, &models.Goal{
			OwnerID:       userID,
			CategoryName:  snapshot.CategoryName,
			CategoryColor: snapshot.CategoryColor,
			Answers:       snapshot.Answers,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		})
		if err != nil {
			return nil, err
		}
		for i, stepSnapshot := range snapshot.Steps {
			_, err := s.store.AddStep(ctx, &models.Step{
				OwnerID:       userID,
				GoalID:        goal.ID,
				CategoryName:  snapshot.CategoryName,
				CategoryColor: snapshot.CategoryColor,
				Text:          stepSnapshot.Text,
				Urgency:       stepSnapshot.Urgency,
				Deadline:      stepSnapshot.Deadline,
				Completed:     true,
				XPAwarded:     true,
				Order:         i,
				CreatedAt:     time.Now(),
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if _, err := s.store.DeleteCompletedGoal(ctx, bson.M{"_id": completedID, "owner_id": userID}); err != nil {
		return nil, err
	}
	return goal, nil
}

func reflectionDraftKey(completedID primitive.ObjectID) string {
	return "reflection_draft_" + completedID.Hex()
}

// SaveReflection stores a reflection on an archived goal. Reflections
// are a premium feature. Any cached draft is cleared on success.
func (s *Service) SaveReflection(ctx context.Context, userID, completedID primitive.ObjectID, text string) error {
	if text == "" {
		return errors.New("reflection cannot be empty")
	}
	if !s.isPremium(ctx, userID) {
		return ErrPremiumOnly
	}
	if _, err := s.findCompleted(ctx, userID, completedID); err != nil {
		return err
	}

	_, err := s.store.UpdateCompletedGoal(ctx,
		bson.M{"_id": completedID, "owner_id": userID},
		bson.M{"$set": bson.M{"reflection": text}})
	if err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, reflectionDraftKey(completedID))
	}
	return nil
}

// SaveReflectionDraft buffers an unsaved reflection in the cache so the
// text survives a disconnect.
func (s *Service) SaveReflectionDraft(ctx context.Context, completedID primitive.ObjectID, text string) error {
	if s.cache == nil {
		return errors.New("no cache configured")
	}
	return s.cache.Set(ctx, reflectionDraftKey(completedID), text)
}

// ReflectionDraft returns the buffered draft for a completed goal, or
// an empty string when there is none.
func (s *Service) ReflectionDraft(ctx context.Context, completedID primitive.ObjectID) string {
	if s.cache == nil {
		return ""
	}
	cached, err := s.cache.Get(ctx, reflectionDraftKey(completedID))
	if err != nil {
		return ""
	}
	draft, _ := cached.(string)
	return draft
}

// Progress returns the per-category summary and the per-goal breakdown
// for the user's active goals, in the requested sort order and
// optionally restricted to one category.
func (s *Service) Progress(ctx context.Context, userID primitive.ObjectID, mode progress.SortMode, categoryFilter string) ([]progress.CategorySummary, []progress.GoalProgress, error) {
	goals, err := s.store.FindGoals(ctx, bson.M{"owner_id": userID, "completed": false})
	if err != nil {
		return nil, nil, err
	}
	steps, err := s.store.FindSteps(ctx, bson.M{"owner_id": userID})
	if err != nil {
		return nil, nil, err
	}

	summaries := progress.SummarizeByCategory(goals, steps)
	breakdown := progress.CombineGoalSteps(goals, steps, mode, categoryFilter)
	return summaries, breakdown, nil
}
