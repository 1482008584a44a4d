package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/srkaul/goalmaster/backend/models"
)

// levelThreshold is the XP needed for each level. Level is always derived
// as floor(xp/levelThreshold)+1 and never stored inconsistently with xp.
const levelThreshold = 100

// MongoStorage is a struct representing a MongoDB storage.
// It provides an interface to perform CRUD operations on the collections
// backing the goal tracker: users, categories, goals, steps, completedGoals.
type MongoStorage struct {
	client *mongo.Client
	dbName string
}

// NewMongoStorage creates a new instance of MongoStorage.
// This function doesn't establish a connection to the MongoDB server.
// To connect to the server, use the Connect method of the returned MongoStorage instance.
func NewMongoStorage() *MongoStorage {
	return &MongoStorage{}
}

// Connect establishes a connection to the MongoDB server at the given URI
// and database name, and sets up indexes and unique constraints.
// Returns an error if any issues are encountered.
func (m *MongoStorage) Connect(dbName, uri string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %v", err)
	}

	m.client = client
	m.dbName = dbName

	// Every user has a unique email.
	usersCollection := m.client.Database(m.dbName).Collection("users")
	emailIndexModel := mongo.IndexModel{
		Keys: bson.M{
			"email": 1, // 1 for ascending order
		},
		Options: options.Index().SetUnique(true),
	}
	_, err = usersCollection.Indexes().CreateOne(ctx, emailIndexModel)
	if err != nil {
		return fmt.Errorf("error creating email index: %v", err)
	}

	// Owner lookups are the dominant query shape on every user-owned
	// collection.
	ownerIndexModel := mongo.IndexModel{
		Keys: bson.M{
			"owner_id": 1,
		},
		Options: options.Index(),
	}

	// A user can't have two categories with the same name.
	categoriesCollection := m.client.Database(m.dbName).Collection("categories")
	ownerNameIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "owner_id", Value: 1},
			{Key: "name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	_, err = categoriesCollection.Indexes().CreateOne(ctx, ownerNameIndexModel)
	if err != nil {
		return fmt.Errorf("error creating owner_id and name index on categories: %v", err)
	}

	goalsCollection := m.client.Database(m.dbName).Collection("goals")
	_, err = goalsCollection.Indexes().CreateOne(ctx, ownerIndexModel)
	if err != nil {
		return fmt.Errorf("error creating owner_id index on goals: %v", err)
	}

	stepsCollection := m.client.Database(m.dbName).Collection("steps")
	_, err = stepsCollection.Indexes().CreateOne(ctx, ownerIndexModel)
	if err != nil {
		return fmt.Errorf("error creating owner_id index on steps: %v", err)
	}
	goalIdIndexModel := mongo.IndexModel{
		Keys: bson.M{
			"goal_id": 1,
		},
		Options: options.Index(),
	}
	_, err = stepsCollection.Indexes().CreateOne(ctx, goalIdIndexModel)
	if err != nil {
		return fmt.Errorf("error creating goal_id index on steps: %v", err)
	}

	completedCollection := m.client.Database(m.dbName).Collection("completedGoals")
	_, err = completedCollection.Indexes().CreateOne(ctx, ownerIndexModel)
	if err != nil {
		return fmt.Errorf("error creating owner_id index on completedGoals: %v", err)
	}

	return nil
}

// Disconnect closes the connection to the MongoDB server.
// It should be called when the MongoStorage instance is no longer needed.
// Returns an error if the disconnection process fails.
func (m *MongoStorage) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.client.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %v", err)
	}

	return nil
}

// AddUser adds a new user document to the 'users' collection.
// Returns the added user instance and an error if the insert operation fails.
func (m *MongoStorage) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	result, err := collection.InsertOne(ctx, user)
	if err != nil {
		if writeException, ok := err.(mongo.WriteException); ok {
			for _, writeError := range writeException.WriteErrors {
				if writeError.Code == 11000 {
					return nil, errors.New("an account with this email already exists")
				}
			}
		}
		return nil, err
	}

	user.ID = result.InsertedID.(primitive.ObjectID)
	return user, nil
}

// FindUser finds a user document in the 'users' collection that matches the given filter.
// Returns the found user as a User instance and an error if the find operation fails.
func (m *MongoStorage) FindUser(ctx context.Context, filter interface{}) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	result := collection.FindOne(ctx, filter)
	user := &models.User{}
	err := result.Decode(user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser updates a user document in the 'users' collection that matches the given filter with the provided update.
// Returns the updated user as a User instance and an error if the update operation fails.
func (m *MongoStorage) UpdateUser(ctx context.Context, filter interface{}, update interface{}) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, errors.New("no user found to update")
	}
	updatedUser, err := m.FindUser(ctx, filter)
	if err != nil {
		return nil, err
	}
	return updatedUser, nil
}

// DeleteUser deletes a user document from the 'users' collection that matches the given filter.
// It also deletes all categories, goals, steps and completed-goal snapshots owned by the user.
// Returns the result of the delete operation and an error if it fails.
func (m *MongoStorage) DeleteUser(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	userResult := collection.FindOne(ctx, filter)
	if err := userResult.Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.New("user not found")
		}
		return nil, err
	}

	user := &models.User{}
	if err := userResult.Decode(user); err != nil {
		return nil, err
	}

	ownedFilter := bson.M{"owner_id": user.ID}
	for _, name := range []string{"categories", "goals", "steps", "completedGoals"} {
		_, err := m.client.Database(m.dbName).Collection(name).DeleteMany(ctx, ownedFilter)
		if err != nil {
			return nil, err
		}
	}

	result, err := collection.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// IncrementUserXP atomically adds amount to the user's XP counter via $inc,
// so two concurrent awards can't lose each other to a read-modify-write
// race, then recomputes and persists the derived level from the resulting
// value. Returns the user carrying the post-increment xp and level.
func (m *MongoStorage) IncrementUserXP(ctx context.Context, userID primitive.ObjectID, amount int) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")

	after := options.After
	opts := options.FindOneAndUpdateOptions{ReturnDocument: &after}
	result := collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": userID},
		bson.M{"$inc": bson.M{"xp": amount}},
		&opts,
	)
	if err := result.Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.New("user not found")
		}
		return nil, err
	}

	user := &models.User{}
	if err := result.Decode(user); err != nil {
		return nil, err
	}

	user.Level = user.XP/levelThreshold + 1
	_, err := collection.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"level": user.Level}})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// AddCategory adds a new category document to the 'categories' collection.
// Returns the added category and an error if the insert operation fails.
func (m *MongoStorage) AddCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	if category.Name == "" || category.OwnerID.IsZero() {
		return nil, errors.New("invalid category fields")
	}

	collection := m.client.Database(m.dbName).Collection("categories")
	result, err := collection.InsertOne(ctx, category)
	if err != nil {
		if writeException, ok := err.(mongo.WriteException); ok {
			for _, writeError := range writeException.WriteErrors {
				if writeError.Code == 11000 {
					return nil, fmt.Errorf("a category named '%s' already exists", category.Name)
				}
			}
		}
		return nil, err
	}
	category.ID = result.InsertedID.(primitive.ObjectID)
	return category, nil
}

// FindCategories finds category documents matching the given filter.
func (m *MongoStorage) FindCategories(ctx context.Context, filter interface{}) ([]models.Category, error) {
	collection := m.client.Database(m.dbName).Collection("categories")
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var categories []models.Category
	for cursor.Next(ctx) {
		var category models.Category
		if err := cursor.Decode(&category); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, nil
}

// DeleteCategory deletes category documents matching the given filter.
// Goals referencing the category are left untouched; they keep their
// denormalized name/color snapshot.
func (m *MongoStorage) DeleteCategory(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	collection := m.client.Database(m.dbName).Collection("categories")
	result, err := collection.DeleteMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// CategoryCount returns the number of category documents matching the filter.
func (m *MongoStorage) CategoryCount(ctx context.Context, filter interface{}) (int64, error) {
	collection := m.client.Database(m.dbName).Collection("categories")
	return collection.CountDocuments(ctx, filter)
}

// AddGoal adds a new goal document to the 'goals' collection.
// At least one answer field must be non-empty.
func (m *MongoStorage) AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	if goal.OwnerID.IsZero() || !goal.Answers.HasAny() {
		return nil, errors.New("invalid goal fields")
	}

	collection := m.client.Database(m.dbName).Collection("goals")
	result, err := collection.InsertOne(ctx, goal)
	if err != nil {
		return nil, err
	}
	goal.ID = result.InsertedID.(primitive.ObjectID)
	return goal, nil
}

// FindGoals finds goal documents matching the given filter after validating
// the filter fields.
func (m *MongoStorage) FindGoals(ctx context.Context, filter interface{}) ([]models.Goal, error) {
	filterMap, ok := filter.(bson.M)
	if !ok {
		return nil, errors.New("invalid filter data")
	}

	validFields := map[string]struct{}{
		"_id":           {},
		"owner_id":      {},
		"category_id":   {},
		"category_name": {},
		"completed":     {},
	}
	for field := range filterMap {
		if _, ok := validFields[field]; !ok {
			return nil, errors.New("invalid field in filter")
		}
	}

	collection := m.client.Database(m.dbName).Collection("goals")
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var goals []models.Goal
	for cursor.Next(ctx) {
		var goal models.Goal
		if err := cursor.Decode(&goal); err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	return goals, nil
}

// UpdateGoal updates goal documents matching the given filter.
// Filter must be non-empty for a valid update.
func (m *MongoStorage) UpdateGoal(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error) {
	if err := requireFilter(filter); err != nil {
		return nil, err
	}

	collection := m.client.Database(m.dbName).Collection("goals")
	var goal models.Goal
	err := collection.FindOne(ctx, filter).Decode(&goal)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New("goal does not exist")
	} else if err != nil {
		return nil, err
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// DeleteGoal deletes goal documents matching the given filter along with
// every step attached to them.
func (m *MongoStorage) DeleteGoal(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	goals, err := m.FindGoals(ctx, filter)
	if err != nil {
		return nil, err
	}

	stepsCollection := m.client.Database(m.dbName).Collection("steps")
	for _, goal := range goals {
		_, err := stepsCollection.DeleteMany(ctx, bson.M{"goal_id": goal.ID})
		if err != nil {
			return nil, err
		}
	}

	collection := m.client.Database(m.dbName).Collection("goals")
	result, err := collection.DeleteMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// GoalCount returns the number of goal documents matching the filter.
func (m *MongoStorage) GoalCount(ctx context.Context, filter interface{}) (int64, error) {
	collection := m.client.Database(m.dbName).Collection("goals")
	return collection.CountDocuments(ctx, filter)
}

// AddStep adds a new step document to the 'steps' collection.
func (m *MongoStorage) AddStep(ctx context.Context, step *models.Step) (*models.Step, error) {
	if step.Text == "" || step.OwnerID.IsZero() || step.GoalID.IsZero() {
		return nil, errors.New("invalid step fields")
	}

	// The step must attach to an existing goal.
	goalsCollection := m.client.Database(m.dbName).Collection("goals")
	err := goalsCollection.FindOne(ctx, bson.M{"_id": step.GoalID}).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("no goal found with id %s", step.GoalID.Hex())
		}
		return nil, err
	}

	collection := m.client.Database(m.dbName).Collection("steps")
	result, err := collection.InsertOne(ctx, step)
	if err != nil {
		return nil, err
	}
	step.ID = result.InsertedID.(primitive.ObjectID)
	return step, nil
}

// FindSteps finds step documents matching the given filter after validating
// the filter fields.
func (m *MongoStorage) FindSteps(ctx context.Context, filter interface{}) ([]models.Step, error) {
	filterMap, ok := filter.(bson.M)
	if !ok {
		return nil, errors.New("invalid filter data")
	}

	validFields := map[string]struct{}{
		"_id":       {},
		"owner_id":  {},
		"goal_id":   {},
		"completed": {},
		"urgency":   {},
	}
	for field := range filterMap {
		if _, ok := validFields[field]; !ok {
			return nil, errors.New("invalid field in filter")
		}
	}

	collection := m.client.Database(m.dbName).Collection("steps")
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var steps []models.Step
	for cursor.Next(ctx) {
		var step models.Step
		if err := cursor.Decode(&step); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// UpdateStep updates step documents matching the given filter.
// Filter must be non-empty for a valid update.
func (m *MongoStorage) UpdateStep(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error) {
	if err := requireFilter(filter); err != nil {
		return nil, err
	}

	collection := m.client.Database(m.dbName).Collection("steps")
	var step models.Step
	err := collection.FindOne(ctx, filter).Decode(&step)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New("step does not exist")
	} else if err != nil {
		return nil, err
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// DeleteStep deletes step documents matching the given filter.
func (m *MongoStorage) DeleteStep(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	collection := m.client.Database(m.dbName).Collection("steps")
	result, err := collection.DeleteMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// ReorderSteps applies the given order assignments in a single ordered bulk
// write, so a swap lands both-or-neither and the order values within a goal
// stay a contiguous permutation.
func (m *MongoStorage) ReorderSteps(ctx context.Context, orders []StepOrder) error {
	if len(orders) == 0 {
		return errors.New("no order assignments provided")
	}

	writes := make([]mongo.WriteModel, 0, len(orders))
	for _, o := range orders {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": o.StepID}).
			SetUpdate(bson.M{"$set": bson.M{"order": o.Order}}))
	}

	collection := m.client.Database(m.dbName).Collection("steps")
	_, err := collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("error reordering steps: %w", err)
	}
	return nil
}

// StepCount returns the number of step documents matching the filter.
func (m *MongoStorage) StepCount(ctx context.Context, filter interface{}) (int64, error) {
	collection := m.client.Database(m.dbName).Collection("steps")
	return collection.CountDocuments(ctx, filter)
}

// AddCompletedGoal adds a completed-goal snapshot to the 'completedGoals' collection.
func (m *MongoStorage) AddCompletedGoal(ctx context.Context, cg *models.CompletedGoal) (*models.CompletedGoal, error) {
	if cg.OwnerID.IsZero() || cg.GoalID.IsZero() {
		return nil, errors.New("invalid completed goal fields")
	}

	collection := m.client.Database(m.dbName).Collection("completedGoals")
	result, err := collection.InsertOne(ctx, cg)
	if err != nil {
		return nil, err
	}
	cg.ID = result.InsertedID.(primitive.ObjectID)
	return cg, nil
}

// FindCompletedGoals finds completed-goal snapshots matching the given filter.
func (m *MongoStorage) FindCompletedGoals(ctx context.Context, filter interface{}) ([]models.CompletedGoal, error) {
	collection := m.client.Database(m.dbName).Collection("completedGoals")
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var snapshots []models.CompletedGoal
	for cursor.Next(ctx) {
		var cg models.CompletedGoal
		if err := cursor.Decode(&cg); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, cg)
	}
	return snapshots, nil
}

// UpdateCompletedGoal updates completed-goal snapshots matching the filter.
// Used for saving reflections.
func (m *MongoStorage) UpdateCompletedGoal(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error) {
	if err := requireFilter(filter); err != nil {
		return nil, err
	}

	collection := m.client.Database(m.dbName).Collection("completedGoals")
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, errors.New("no completed goal found to update")
	}
	return &UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// DeleteCompletedGoal deletes completed-goal snapshots matching the filter.
func (m *MongoStorage) DeleteCompletedGoal(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	collection := m.client.Database(m.dbName).Collection("completedGoals")
	result, err := collection.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// requireFilter rejects nil, non-bson.M and empty filters, which would
// otherwise match every document in a collection.
func requireFilter(filter interface{}) error {
	if filter == nil {
		return errors.New("filter cannot be nil")
	}
	filterMap, ok := filter.(bson.M)
	if !ok {
		return errors.New("filter must be of type bson.M")
	}
	if len(filterMap) == 0 {
		return errors.New("filter cannot be empty")
	}
	return nil
}
