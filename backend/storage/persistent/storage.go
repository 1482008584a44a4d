package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/srkaul/goalmaster/backend/models"
)

// DeleteResult represents the result of a deletion operation in MongoDB,
// specifically the count of documents deleted.
type DeleteResult struct {
	DeletedCount int64
}

// UpdateResult represents the result of an update operation in MongoDB,
// specifically the count of documents matched and modified.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

// StepOrder is one entry of a reorder write: the step to update and the
// order value it must receive. All entries of a reorder are applied
// both-or-neither.
type StepOrder struct {
	StepID primitive.ObjectID
	Order  int
}

// StorageInterface defines the set of methods that any persistent storage
// backend needs to implement.
type StorageInterface interface {
	// Establishes a connection to the storage backend.
	Connect(dbName, uri string) error
	// Disconnects from the storage backend.
	Disconnect() error

	// Adds a new user to the storage backend.
	AddUser(ctx context.Context, user *models.User) (*models.User, error)
	// Finds a user in the storage backend using a filter.
	FindUser(ctx context.Context, filter interface{}) (*models.User, error)
	// Updates an existing user in the storage backend using a filter and update instructions.
	UpdateUser(ctx context.Context, filter interface{}, update interface{}) (*models.User, error)
	// Deletes a user and every document the user owns.
	DeleteUser(ctx context.Context, filter interface{}) (*DeleteResult, error)
	// Atomically adds amount to a user's XP counter and returns the user
	// with the resulting value. Level is recomputed from the result.
	IncrementUserXP(ctx context.Context, userID primitive.ObjectID, amount int) (*models.User, error)

	// Category operations.
	AddCategory(ctx context.Context, category *models.Category) (*models.Category, error)
	FindCategories(ctx context.Context, filter interface{}) ([]models.Category, error)
	DeleteCategory(ctx context.Context, filter interface{}) (*DeleteResult, error)
	CategoryCount(ctx context.Context, filter interface{}) (int64, error)

	// Goal operations. DeleteGoal also removes the goal's steps.
	AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error)
	FindGoals(ctx context.Context, filter interface{}) ([]models.Goal, error)
	UpdateGoal(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error)
	DeleteGoal(ctx context.Context, filter interface{}) (*DeleteResult, error)
	GoalCount(ctx context.Context, filter interface{}) (int64, error)

	// Step operations. ReorderSteps applies every order assignment in a
	// single ordered bulk write.
	AddStep(ctx context.Context, step *models.Step) (*models.Step, error)
	FindSteps(ctx context.Context, filter interface{}) ([]models.Step, error)
	UpdateStep(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error)
	DeleteStep(ctx context.Context, filter interface{}) (*DeleteResult, error)
	ReorderSteps(ctx context.Context, orders []StepOrder) error
	StepCount(ctx context.Context, filter interface{}) (int64, error)

	// Completed-goal snapshot operations.
	AddCompletedGoal(ctx context.Context, cg *models.CompletedGoal) (*models.CompletedGoal, error)
	FindCompletedGoals(ctx context.Context, filter interface{}) ([]models.CompletedGoal, error)
	UpdateCompletedGoal(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error)
	DeleteCompletedGoal(ctx context.Context, filter interface{}) (*DeleteResult, error)
}

// NewStorage creates a new StorageInterface with a MongoDB backend,
// using the provided URI to connect to the MongoDB server.
func NewStorage(dbName, uri string) (StorageInterface, error) {
	storage := NewMongoStorage()
	err := storage.Connect(dbName, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage, nil
}
