package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/srkaul/goalmaster/backend/models"
)

// MemoryStorage is an in-process StorageInterface backend. It understands
// the same bson.M filters and $set updates the Mongo backend receives, so
// services and tests run against it unchanged and without a database.
type MemoryStorage struct {
	mu        sync.RWMutex
	users     map[primitive.ObjectID]*models.User
	userOrder []primitive.ObjectID

	categories    map[primitive.ObjectID]*models.Category
	categoryOrder []primitive.ObjectID

	goals     map[primitive.ObjectID]*models.Goal
	goalOrder []primitive.ObjectID

	steps     map[primitive.ObjectID]*models.Step
	stepOrder []primitive.ObjectID

	completed      map[primitive.ObjectID]*models.CompletedGoal
	completedOrder []primitive.ObjectID
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:      make(map[primitive.ObjectID]*models.User),
		categories: make(map[primitive.ObjectID]*models.Category),
		goals:      make(map[primitive.ObjectID]*models.Goal),
		steps:      make(map[primitive.ObjectID]*models.Step),
		completed:  make(map[primitive.ObjectID]*models.CompletedGoal),
	}
}

func (s *MemoryStorage) Connect(dbName, uri string) error { return nil }
func (s *MemoryStorage) Disconnect() error                { return nil }

func asFilter(filter interface{}) (bson.M, error) {
	if filter == nil {
		return nil, errors.New("filter cannot be nil")
	}
	m, ok := filter.(bson.M)
	if !ok {
		return nil, errors.New("filter must be of type bson.M")
	}
	return m, nil
}

func asSet(update interface{}) (bson.M, error) {
	m, ok := update.(bson.M)
	if !ok {
		return nil, errors.New("invalid update data")
	}
	set, ok := m["$set"].(bson.M)
	if !ok {
		return nil, errors.New("invalid update data")
	}
	return set, nil
}

// fieldsMatch compares filter entries against a field lookup function.
func fieldsMatch(filter bson.M, lookup func(key string) (interface{}, bool)) bool {
	for key, want := range filter {
		got, ok := lookup(key)
		if !ok {
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

func userLookup(u *models.User) func(string) (interface{}, bool) {
	return func(key string) (interface{}, bool) {
		switch key {
		case "_id":
			return u.ID, true
		case "email":
			return u.Email, true
		}
		return nil, false
	}
}

func categoryLookup(c *models.Category) func(string) (interface{}, bool) {
	return func(key string) (interface{}, bool) {
		switch key {
		case "_id":
			return c.ID, true
		case "owner_id":
			return c.OwnerID, true
		case "name":
			return c.Name, true
		}
		return nil, false
	}
}

func goalLookup(g *models.Goal) func(string) (interface{}, bool) {
	return func(key string) (interface{}, bool) {
		switch key {
		case "_id":
			return g.ID, true
		case "owner_id":
			return g.OwnerID, true
		case "category_id":
			return g.CategoryID, true
		case "category_name":
			return g.CategoryName, true
		case "completed":
			return g.Completed, true
		}
		return nil, false
	}
}

func stepLookup(st *models.Step) func(string) (interface{}, bool) {
	return func(key string) (interface{}, bool) {
		switch key {
		case "_id":
			return st.ID, true
		case "owner_id":
			return st.OwnerID, true
		case "goal_id":
			return st.GoalID, true
		case "completed":
			return st.Completed, true
		case "urgency":
			return st.Urgency, true
		}
		return nil, false
	}
}

func completedLookup(cg *models.CompletedGoal) func(string) (interface{}, bool) {
	return func(key string) (interface{}, bool) {
		switch key {
		case "_id":
			return cg.ID, true
		case "owner_id":
			return cg.OwnerID, true
		case "goal_id":
			return cg.GoalID, true
		}
		return nil, false
	}
}

func (s *MemoryStorage) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return nil, errors.New("an account with this email already exists")
		}
	}

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	stored := *user
	s.users[user.ID] = &stored
	s.userOrder = append(s.userOrder, user.ID)
	return user, nil
}

func (s *MemoryStorage) FindUser(ctx context.Context, filter interface{}) (*models.User, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.userOrder {
		u := s.users[id]
		if fieldsMatch(m, userLookup(u)) {
			found := *u
			return &found, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s *MemoryStorage) UpdateUser(ctx context.Context, filter interface{}, update interface{}) (*models.User, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}
	set, err := asSet(update)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.userOrder {
		u := s.users[id]
		if !fieldsMatch(m, userLookup(u)) {
			continue
		}
		for key, value := range set {
			switch {
			case key == "email":
				u.Email = value.(string)
			case key == "password_hash":
				u.PasswordHash = value.(string)
			case key == "xp":
				u.XP = value.(int)
			case key == "level":
				u.Level = value.(int)
			case key == "is_premium":
				u.IsPremium = value.(bool)
			case key == "reward_map":
				u.RewardMap = value.(map[string]string)
			case strings.HasPrefix(key, "reward_map."):
				if u.RewardMap == nil {
					u.RewardMap = make(map[string]string)
				}
				u.RewardMap[strings.TrimPrefix(key, "reward_map.")] = value.(string)
			default:
				return nil, fmt.Errorf("unsupported user update field %q", key)
			}
		}
		found := *u
		return &found, nil
	}
	return nil, errors.New("no user found to update")
}

func (s *MemoryStorage) DeleteUser(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range s.userOrder {
		u := s.users[id]
		if !fieldsMatch(m, userLookup(u)) {
			continue
		}
		for cid, c := range s.categories {
			if c.OwnerID == id {
				delete(s.categories, cid)
				s.categoryOrder = removeID(s.categoryOrder, cid)
			}
		}
		for gid, g := range s.goals {
			if g.OwnerID == id {
				delete(s.goals, gid)
				s.goalOrder = removeID(s.goalOrder, gid)
			}
		}
		for sid, st := range s.steps {
			if st.OwnerID == id {
				delete(s.steps, sid)
				s.stepOrder = removeID(s.stepOrder, sid)
			}
		}
		for cgid, cg := range s.completed {
			if cg.OwnerID == id {
				delete(s.completed, cgid)
				s.completedOrder = removeID(s.completedOrder, cgid)
			}
		}
		delete(s.users, id)
		s.userOrder = append(s.userOrder[:i], s.userOrder[i+1:]...)
		return &DeleteResult{DeletedCount: 1}, nil
	}
	return nil, errors.New("user not found")
}

func (s *MemoryStorage) IncrementUserXP(ctx context.Context, userID primitive.ObjectID, amount int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	u.XP += amount
	u.Level = u.XP/levelThreshold + 1
	found := *u
	return &found, nil
}

func (s *MemoryStorage) AddCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	if category.Name == "" || category.OwnerID.IsZero() {
		return nil, errors.New("invalid category fields")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.OwnerID == category.OwnerID && existing.Name == category.Name {
			return nil, fmt.Errorf("a category named '%s' already exists", category.Name)
		}
	}

	if category.ID.IsZero() {
		category.ID = primitive.NewObjectID()
	}
	stored := *category
	s.categories[category.ID] = &stored
	s.categoryOrder = append(s.categoryOrder, category.ID)
	return category, nil
}

func (s *MemoryStorage) FindCategories(ctx context.Context, filter interface{}) ([]models.Category, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var categories []models.Category
	for _, id := range s.categoryOrder {
		c := s.categories[id]
		if fieldsMatch(m, categoryLookup(c)) {
			categories = append(categories, *c)
		}
	}
	return categories, nil
}

func (s *MemoryStorage) DeleteCategory(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range append([]primitive.ObjectID(nil), s.categoryOrder...) {
		c := s.categories[id]
		if fieldsMatch(m, categoryLookup(c)) {
			delete(s.categories, id)
			s.categoryOrder = removeID(s.categoryOrder, id)
			deleted++
		}
	}
	return &DeleteResult{DeletedCount: deleted}, nil
}

func (s *MemoryStorage) CategoryCount(ctx context.Context, filter interface{}) (int64, error) {
	categories, err := s.FindCategories(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(categories)), nil
}

func (s *MemoryStorage) AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	if goal.OwnerID.IsZero() || !goal.Answers.HasAny() {
		return nil, errors.New("invalid goal fields")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if goal.ID.IsZero() {
		goal.ID = primitive.NewObjectID()
	}
	stored := *goal
	s.goals[goal.ID] = &stored
	s.goalOrder = append(s.goalOrder, goal.ID)
	return goal, nil
}

func (s *MemoryStorage) FindGoals(ctx context.Context, filter interface{}) ([]models.Goal, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var goals []models.Goal
	for _, id := range s.goalOrder {
		g := s.goals[id]
		if fieldsMatch(m, goalLookup(g)) {
			goals = append(goals, *g)
		}
	}
	return goals, nil
}

func (s *MemoryStorage) UpdateGoal(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("filter cannot be empty")
	}
	set, err := asSet(update)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.goalOrder {
		g := s.goals[id]
		if !fieldsMatch(m, goalLookup(g)) {
			continue
		}
		for key, value := range set {
			switch key {
			case "completed":
				g.Completed = value.(bool)
			case "answers":
				g.Answers = value.(models.Answers)
			case "category_id":
				g.CategoryID = value.(primitive.ObjectID)
			case "category_name":
				g.CategoryName = value.(string)
			case "category_color":
				g.CategoryColor = value.(string)
			case "updated_at":
				g.UpdatedAt = toTime(value)
			default:
				return nil, fmt.Errorf("unsupported goal update field %q", key)
			}
		}
		return &UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	return nil, errors.New("goal does not exist")
}

func (s *MemoryStorage) DeleteGoal(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range append([]primitive.ObjectID(nil), s.goalOrder...) {
		g := s.goals[id]
		if !fieldsMatch(m, goalLookup(g)) {
			continue
		}
		for sid, st := range s.steps {
			if st.GoalID == id {
				delete(s.steps, sid)
				s.stepOrder = removeID(s.stepOrder, sid)
			}
		}
		delete(s.goals, id)
		s.goalOrder = removeID(s.goalOrder, id)
		deleted++
	}
	return &DeleteResult{DeletedCount: deleted}, nil
}

func (s *MemoryStorage) GoalCount(ctx context.Context, filter interface{}) (int64, error) {
	goals, err := s.FindGoals(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(goals)), nil
}

func (s *MemoryStorage) AddStep(ctx context.Context, step *models.Step) (*models.Step, error) {
	if step.Text == "" || step.OwnerID.IsZero() || step.GoalID.IsZero() {
		return nil, errors.New("invalid step fields")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[step.GoalID]; !ok {
		return nil, fmt.Errorf("no goal found with id %s", step.GoalID.Hex())
	}

	if step.ID.IsZero() {
		step.ID = primitive.NewObjectID()
	}
	stored := *step
	s.steps[step.ID] = &stored
	s.stepOrder = append(s.stepOrder, step.ID)
	return step, nil
}

func (s *MemoryStorage) FindSteps(ctx context.Context, filter interface{}) ([]models.Step, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var steps []models.Step
	for _, id := range s.stepOrder {
		st := s.steps[id]
		if fieldsMatch(m, stepLookup(st)) {
			steps = append(steps, *st)
		}
	}
	return steps, nil
}

func (s *MemoryStorage) UpdateStep(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("filter cannot be empty")
	}
	set, err := asSet(update)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.stepOrder {
		st := s.steps[id]
		if !fieldsMatch(m, stepLookup(st)) {
			continue
		}
		for key, value := range set {
			switch key {
			case "text":
				st.Text = value.(string)
			case "urgency":
				st.Urgency = value.(string)
			case "deadline":
				st.Deadline = value.(string)
			case "completed":
				st.Completed = value.(bool)
			case "xp_awarded":
				st.XPAwarded = value.(bool)
			case "order":
				st.Order = value.(int)
			default:
				return nil, fmt.Errorf("unsupported step update field %q", key)
			}
		}
		return &UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	return nil, errors.New("step does not exist")
}

func (s *MemoryStorage) DeleteStep(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range append([]primitive.ObjectID(nil), s.stepOrder...) {
		st := s.steps[id]
		if fieldsMatch(m, stepLookup(st)) {
			delete(s.steps, id)
			s.stepOrder = removeID(s.stepOrder, id)
			deleted++
		}
	}
	return &DeleteResult{DeletedCount: deleted}, nil
}

func (s *MemoryStorage) ReorderSteps(ctx context.Context, orders []StepOrder) error {
	if len(orders) == 0 {
		return errors.New("no order assignments provided")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Both-or-neither: verify every step exists before mutating any.
	for _, o := range orders {
		if _, ok := s.steps[o.StepID]; !ok {
			return fmt.Errorf("no step found with id %s", o.StepID.Hex())
		}
	}
	for _, o := range orders {
		s.steps[o.StepID].Order = o.Order
	}
	return nil
}

func (s *MemoryStorage) StepCount(ctx context.Context, filter interface{}) (int64, error) {
	steps, err := s.FindSteps(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(steps)), nil
}

func (s *MemoryStorage) AddCompletedGoal(ctx context.Context, cg *models.CompletedGoal) (*models.CompletedGoal, error) {
	if cg.OwnerID.IsZero() || cg.GoalID.IsZero() {
		return nil, errors.New("invalid completed goal fields")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cg.ID.IsZero() {
		cg.ID = primitive.NewObjectID()
	}
	stored := *cg
	s.completed[cg.ID] = &stored
	s.completedOrder = append(s.completedOrder, cg.ID)
	return cg, nil
}

func (s *MemoryStorage) FindCompletedGoals(ctx context.Context, filter interface{}) ([]models.CompletedGoal, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshots []models.CompletedGoal
	for _, id := range s.completedOrder {
		cg := s.completed[id]
		if fieldsMatch(m, completedLookup(cg)) {
			snapshots = append(snapshots, *cg)
		}
	}
	return snapshots, nil
}

func (s *MemoryStorage) UpdateCompletedGoal(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("filter cannot be empty")
	}
	set, err := asSet(update)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.completedOrder {
		cg := s.completed[id]
		if !fieldsMatch(m, completedLookup(cg)) {
			continue
		}
		for key, value := range set {
			switch key {
			case "reflection":
				cg.Reflection = value.(string)
			default:
				return nil, fmt.Errorf("unsupported completed goal update field %q", key)
			}
		}
		return &UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	return nil, errors.New("no completed goal found to update")
}

func (s *MemoryStorage) DeleteCompletedGoal(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	m, err := asFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range append([]primitive.ObjectID(nil), s.completedOrder...) {
		cg := s.completed[id]
		if fieldsMatch(m, completedLookup(cg)) {
			delete(s.completed, id)
			s.completedOrder = removeID(s.completedOrder, id)
			return &DeleteResult{DeletedCount: 1}, nil
		}
	}
	return &DeleteResult{DeletedCount: 0}, nil
}

func removeID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func toTime(value interface{}) time.Time {
	if t, ok := value.(time.Time); ok {
		return t
	}
	return time.Time{}
}
