package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Urgency values recognized on a Step. Anything else is treated as Medium
// when sorting by priority.
const (
	UrgencyHigh   = "High"
	UrgencyMedium = "Medium"
	UrgencyLow    = "Low"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	XP           int                `bson:"xp" json:"xp"`
	Level        int                `bson:"level" json:"level"`
	IsPremium    bool               `bson:"is_premium" json:"is_premium"`
	// RewardMap maps a level (as a decimal string, BSON map keys must be
	// strings) to the user's self-defined reward for reaching it.
	RewardMap map[string]string `bson:"reward_map,omitempty" json:"reward_map,omitempty"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
}

type Category struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID   primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	Name      string             `bson:"name" json:"name"`
	ColorTag  string             `bson:"color_tag" json:"color_tag"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Answers holds the free-text motivational answers collected when a goal is
// created. All fields are optional, but at least one must be non-empty for
// the goal to be saved.
type Answers struct {
	What  string `bson:"what,omitempty" json:"what,omitempty"`
	Why   string `bson:"why,omitempty" json:"why,omitempty"`
	When  string `bson:"when,omitempty" json:"when,omitempty"`
	Where string `bson:"where,omitempty" json:"where,omitempty"`
	Who   string `bson:"who,omitempty" json:"who,omitempty"`
}

// HasAny reports whether at least one answer field carries text.
func (a Answers) HasAny() bool {
	return a.What != "" || a.Why != "" || a.When != "" || a.Where != "" || a.Who != ""
}

// GoalTemplate is a prefilled starting point for a common goal. Category
// and ColorTag name the category the goal belongs in, which is created
// on demand when the template is used.
type GoalTemplate struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	ColorTag string  `json:"color_tag"`
	Answers  Answers `json:"answers"`
}

// GoalTemplates lists the built-in goal templates.
var GoalTemplates = []GoalTemplate{
	{
		Name:     "Run 5K",
		Category: "Fitness",
		ColorTag: "#00FF00",
		Answers:  Answers{What: "Run a 5K", Why: "Improve health"},
	},
	{
		Name:     "Finish Project",
		Category: "Work",
		ColorTag: "#FF0000",
		Answers:  Answers{What: "Complete work project", Why: "Advance career"},
	},
	{
		Name:     "Read Book",
		Category: "Personal",
		ColorTag: "#0000FF",
		Answers:  Answers{What: "Read a book", Why: "Expand knowledge"},
	},
}

// Goal carries a denormalized snapshot of its category's name and color so
// that it stays displayable after the category is deleted. CategoryID is a
// soft reference and may be zero.
type Goal struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID       primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	CategoryID    primitive.ObjectID `bson:"category_id,omitempty" json:"category_id,omitempty"`
	CategoryName  string             `bson:"category_name" json:"category_name"`
	CategoryColor string             `bson:"category_color" json:"category_color"`
	Answers       Answers            `bson:"answers" json:"answers"`
	Completed     bool               `bson:"completed" json:"completed"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// Step belongs to exactly one goal. Order values within a goal's step set
// form a contiguous permutation of [0..n-1]; reordering swaps two of them
// in a single both-or-neither write. XPAwarded records whether this step
// has ever granted XP, so re-completing a step never awards twice.
type Step struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID       primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	GoalID        primitive.ObjectID `bson:"goal_id" json:"goal_id"`
	CategoryName  string             `bson:"category_name" json:"category_name"`
	CategoryColor string             `bson:"category_color" json:"category_color"`
	Text          string             `bson:"text" json:"text"`
	Urgency       string             `bson:"urgency" json:"urgency"`
	Deadline      string             `bson:"deadline,omitempty" json:"deadline,omitempty"`
	Completed     bool               `bson:"completed" json:"completed"`
	XPAwarded     bool               `bson:"xp_awarded" json:"xp_awarded"`
	Order         int                `bson:"order" json:"order"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}

// StepSnapshot is the immutable copy of a step stored inside a
// CompletedGoal at archive time.
type StepSnapshot struct {
	Text     string `bson:"text" json:"text"`
	Urgency  string `bson:"urgency" json:"urgency"`
	Deadline string `bson:"deadline,omitempty" json:"deadline,omitempty"`
}

// CompletedGoal is the snapshot taken when every step of a goal is complete
// and the user confirms archiving. Reflection is filled in later, if ever.
type CompletedGoal struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID       primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	GoalID        primitive.ObjectID `bson:"goal_id" json:"goal_id"`
	CategoryName  string             `bson:"category_name" json:"category_name"`
	CategoryColor string             `bson:"category_color" json:"category_color"`
	Answers       Answers            `bson:"answers" json:"answers"`
	Steps         []StepSnapshot     `bson:"steps" json:"steps"`
	Reflection    string             `bson:"reflection,omitempty" json:"reflection,omitempty"`
	CompletedAt   time.Time          `bson:"completed_at" json:"completed_at"`
}
