package client

import (
	"net/url"

	"github.com/srkaul/goalmaster/backend/models"
	"github.com/srkaul/goalmaster/backend/progress"
)

// ToggleResult mirrors the server's response to a step toggle.
type ToggleResult struct {
	Step         models.Step `json:"step"`
	GoalComplete bool        `json:"goal_complete"`
	XPAwarded    int         `json:"xp_awarded"`
	LevelUp      *LevelUp    `json:"level_up,omitempty"`
}

// LevelUp mirrors the server's level-up event.
type LevelUp struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reward string `json:"reward"`
}

// XPStatus mirrors the server's XP status response.
type XPStatus struct {
	XP          int  `json:"xp"`
	Level       int  `json:"level"`
	XPIntoLevel int  `json:"xp_into_level"`
	NextLevelAt int  `json:"next_level_at"`
	FromCache   bool `json:"from_cache"`
}

// ProgressReport mirrors the server's progress response.
type ProgressReport struct {
	Summaries []progress.CategorySummary `json:"summaries"`
	Goals     []progress.GoalProgress    `json:"goals"`
}

func Categories() ([]models.Category, error) {
	var categories []models.Category
	err := authedRequest("GET", "/api/categories", nil, &categories)
	return categories, err
}

func CreateCategory(name, colorTag string) (*models.Category, error) {
	var category models.Category
	err := authedRequest("POST", "/api/categories", map[string]string{
		"name":      name,
		"color_tag": colorTag,
	}, &category)
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func DeleteCategory(id string) error {
	return authedRequest("DELETE", "/api/categories/"+id, nil, nil)
}

func Goals(includeCompleted bool) ([]models.Goal, error) {
	path := "/api/goals"
	if includeCompleted {
		path += "?include_completed=true"
	}
	var goals []models.Goal
	err := authedRequest("GET", path, nil, &goals)
	return goals, err
}

func CreateGoal(answers models.Answers, categoryID string) (*models.Goal, error) {
	var goal models.Goal
	err := authedRequest("POST", "/api/goals", map[string]interface{}{
		"answers":     answers,
		"category_id": categoryID,
	}, &goal)
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

func DeleteGoal(id string) error {
	return authedRequest("DELETE", "/api/goals/"+id, nil, nil)
}

func Steps(goalID, sort string) ([]models.Step, error) {
	path := "/api/goals/" + goalID + "/steps"
	if sort != "" {
		path += "?sort=" + url.QueryEscape(sort)
	}
	var steps []models.Step
	err := authedRequest("GET", path, nil, &steps)
	return steps, err
}

func AddStep(goalID, text, urgency, deadline string) (*models.Step, error) {
	var step models.Step
	err := authedRequest("POST", "/api/goals/"+goalID+"/steps", map[string]string{
		"text":     text,
		"urgency":  urgency,
		"deadline": deadline,
	}, &step)
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func DeleteStep(id string) error {
	return authedRequest("DELETE", "/api/steps/"+id, nil, nil)
}

func ToggleStep(id string) (*ToggleResult, error) {
	var result ToggleResult
	err := authedRequest("POST", "/api/steps/"+id+"/toggle", nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func MoveStep(id, direction string) error {
	return authedRequest("POST", "/api/steps/"+id+"/move", map[string]string{
		"direction": direction,
	}, nil)
}

func ArchiveGoal(goalID string) (*models.CompletedGoal, error) {
	var completed models.CompletedGoal
	err := authedRequest("POST", "/api/goals/"+goalID+"/archive", nil, &completed)
	if err != nil {
		return nil, err
	}
	return &completed, nil
}

func CompletedGoals() ([]models.CompletedGoal, error) {
	var completed []models.CompletedGoal
	err := authedRequest("GET", "/api/completed", nil, &completed)
	return completed, err
}

func ReopenGoal(completedID string) (*models.Goal, error) {
	var goal models.Goal
	err := authedRequest("POST", "/api/completed/"+completedID+"/reopen", nil, &goal)
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

func SaveReflectionDraft(completedID, text string) error {
	body := map[string]string{"text": text}
	return authedRequest("PUT", "/api/completed/"+completedID+"/reflection/draft", body, nil)
}

func ReflectionDraft(completedID string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := authedRequest("GET", "/api/completed/"+completedID+"/reflection/draft", nil, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func SaveReflection(completedID, text string) error {
	return authedRequest("PUT", "/api/completed/"+completedID+"/reflection", map[string]string{
		"text": text,
	}, nil)
}

func Progress(sort, category string) (*ProgressReport, error) {
	query := url.Values{}
	if sort != "" {
		query.Set("sort", sort)
	}
	if category != "" {
		query.Set("category", category)
	}
	path := "/api/progress"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var report ProgressReport
	err := authedRequest("GET", path, nil, &report)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func GetXPStatus() (*XPStatus, error) {
	var status XPStatus
	err := authedRequest("GET", "/api/xp", nil, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func SetReward(level int, reward string) error {
	return authedRequest("PUT", "/api/xp/reward", map[string]interface{}{
		"level":  level,
		"reward": reward,
	}, nil)
}

func PremiumStatus() (bool, error) {
	var status struct {
		IsPremium bool `json:"is_premium"`
	}
	err := authedRequest("GET", "/api/premium/status", nil, &status)
	return status.IsPremium, err
}

func BuyPremium() error {
	return authedRequest("POST", "/api/premium/purchase", nil, nil)
}

func RestorePremium() (bool, error) {
	var result struct {
		Restored bool `json:"restored"`
	}
	err := authedRequest("POST", "/api/premium/restore", nil, &result)
	return result.Restored, err
}
