package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/srkaul/goalmaster/backend/goals"
	"github.com/srkaul/goalmaster/backend/models"
	"github.com/srkaul/goalmaster/backend/premium"
	"github.com/srkaul/goalmaster/backend/progress"
	contextKey "github.com/srkaul/goalmaster/backend/server/context_key"
	"github.com/srkaul/goalmaster/backend/server/auth"
	"github.com/srkaul/goalmaster/backend/xp"
)

// API holds the services the REST handlers delegate to.
type API struct {
	goals   *goals.Service
	ledger  *xp.Ledger
	premium *premium.Service
}

func NewAPI(goalService *goals.Service, ledger *xp.Ledger, premiumService *premium.Service) *API {
	return &API{goals: goalService, ledger: ledger, premium: premiumService}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForError maps service errors to HTTP statuses. Unknown errors
// are treated as invalid requests; storage failures surface earlier as
// wrapped errors and still land here rather than leaking a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, goals.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, goals.ErrPremiumOnly),
		errors.Is(err, goals.ErrGoalLimit),
		errors.Is(err, goals.ErrCategoryLimit),
		errors.Is(err, goals.ErrStepLimit):
		return http.StatusForbidden
	case errors.Is(err, premium.ErrProductUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, premium.ErrPurchaseFailed):
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

// requireUser extracts the authenticated user's ID from the request
// context. An identity carried by an expired access token does not
// count; the caller must refresh first. When there is no valid
// identity it answers 401 and reports false.
func requireUser(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	if expired, _ := r.Context().Value(contextKey.TokenExpiredKey).(bool); expired {
		writeError(w, http.StatusUnauthorized, "token expired")
		return primitive.ObjectID{}, false
	}
	return contextUser(w, r)
}

// refreshUser extracts the caller's identity for the refresh endpoint.
// Unlike requireUser it accepts the identity of an expired access
// token, whose claims the middleware still injects, so the caller can
// trade a valid refresh token for a new pair.
func refreshUser(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	return contextUser(w, r)
}

func contextUser(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	raw, _ := r.Context().Value(contextKey.UserIDKey).(string)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return primitive.ObjectID{}, false
	}
	userID, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return primitive.ObjectID{}, false
	}
	return userID, true
}

func pathID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return primitive.ObjectID{}, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, refreshToken, err := auth.SignUp(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, RefreshToken: refreshToken})
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, refreshToken, err := auth.SignIn(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, RefreshToken: refreshToken})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := refreshUser(w, r)
	if !ok {
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	token, refreshToken, err := auth.RefreshToken(userID.Hex(), req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, RefreshToken: refreshToken})
}

func (a *API) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewEmail        string `json:"new_email"`
		NewPassword     string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := auth.UpdateUser(userID.Hex(), req.CurrentPassword, req.NewEmail, req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if _, err := auth.DeleteUser(userID.Hex()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	categories, err := a.goals.ListCategories(r.Context(), userID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Name     string `json:"name"`
		ColorTag string `json:"color_tag"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	category, err := a.goals.CreateCategory(r.Context(), userID, req.Name, req.ColorTag)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	categoryID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.goals.DeleteCategory(r.Context(), userID, categoryID); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) handleListGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	includeCompleted := r.URL.Query().Get("include_completed") == "true"
	userGoals, err := a.goals.ListGoals(r.Context(), userID, includeCompleted)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, userGoals)
}

func parseCategoryID(raw string) (primitive.ObjectID, error) {
	if raw == "" {
		return primitive.ObjectID{}, nil
	}
	return primitive.ObjectIDFromHex(raw)
}

func (a *API) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Answers    models.Answers `json:"answers"`
		CategoryID string         `json:"category_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	categoryID, err := parseCategoryID(req.CategoryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	goal, err := a.goals.CreateGoal(r.Context(), userID, req.Answers, categoryID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (a *API) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	goalID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Answers    *models.Answers `json:"answers"`
		CategoryID *string         `json:"category_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	update := goals.GoalUpdate{Answers: req.Answers}
	if req.CategoryID != nil {
		categoryID, err := parseCategoryID(*req.CategoryID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid category id")
			return
		}
		update.CategoryID = &categoryID
	}
	goal, err := a.goals.UpdateGoal(r.Context(), userID, goalID, update)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (a *API) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	goalID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.goals.DeleteGoal(r.Context(), userID, goalID); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) handleListSteps(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	goalID, ok := pathID(w, r)
	if !ok {
		return
	}
	mode := parseSortMode(r.URL.Query().Get("sort"))
	steps, err := a.goals.ListSteps(r.Context(), userID, goalID, mode)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

func (a *API) handleAddStep(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	goalID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Text     string `json:"text"`
		Urgency  string `json:"urgency"`
		Deadline string `json:"deadline"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	step, err := a.goals.AddStep(r.Context(), userID, goalID, req.Text, req.Urgency, req.Deadline)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, step)
}

func (a *API) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stepID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Text     *string `json:"text"`
		Urgency  *string `json:"urgency"`
		Deadline *string `json:"deadline"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	step, err := a.goals.UpdateStep(r.Context(), userID, stepID, goals.StepUpdate{
		Text:     req.Text,
		Urgency:  req.Urgency,
		Deadline: req.Deadline,
	})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (a *API) handleDeleteStep(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stepID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.goals.DeleteStep(r.Context(), userID, stepID); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) handleToggleStep(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stepID, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := a.goals.ToggleStep(r.Context(), userID, stepID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleMoveStep(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stepID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Direction string `json:"direction"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.goals.MoveStep(r.Context(), userID, stepID, goals.MoveDirection(req.Direction)); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"moved": true})
}

func (a *API) handleArchiveGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	goalID, ok := pathID(w, r)
	if !ok {
		return
	}
	completed, err := a.goals.Archive(r.Context(), userID, goalID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, completed)
}

func (a *API) handleListCompleted(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	completed, err := a.goals.ListCompleted(r.Context(), userID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, completed)
}

func (a *API) handleReopenGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	completedID, ok := pathID(w, r)
	if !ok {
		return
	}
	goal, err := a.goals.Reopen(r.Context(), userID, completedID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (a *API) handleSaveReflection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	completedID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.goals.SaveReflection(r.Context(), userID, completedID, req.Text); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (a *API) handleSaveReflectionDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	completedID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.goals.SaveReflectionDraft(r.Context(), completedID, req.Text); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (a *API) handleReflectionDraft(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	completedID, ok := pathID(w, r)
	if !ok {
		return
	}
	draft := a.goals.ReflectionDraft(r.Context(), completedID)
	writeJSON(w, http.StatusOK, map[string]string{"text": draft})
}

func parseSortMode(raw string) progress.SortMode {
	switch progress.SortMode(raw) {
	case progress.SortModePriority:
		return progress.SortModePriority
	case progress.SortModeDeadline:
		return progress.SortModeDeadline
	case progress.SortModeCategory:
		return progress.SortModeCategory
	}
	return progress.SortModeDefault
}

// progressResponse bundles the category summary with the per-goal
// breakdown the dashboard renders.
type progressResponse struct {
	Summaries []progress.CategorySummary `json:"summaries"`
	Goals     []progress.GoalProgress    `json:"goals"`
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	mode := parseSortMode(r.URL.Query().Get("sort"))
	categoryFilter := r.URL.Query().Get("category")
	summaries, breakdown, err := a.goals.Progress(r.Context(), userID, mode, categoryFilter)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{Summaries: summaries, Goals: breakdown})
}

func (a *API) handleXPStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	status, err := a.ledger.Status(r.Context(), userID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleSetReward(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Level  int    `json:"level"`
		Reward string `json:"reward"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.ledger.SetReward(r.Context(), userID, req.Level, req.Reward); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (a *API) handlePremiumStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_premium": a.premium.Status(r.Context(), userID)})
}

func (a *API) handlePremiumPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.premium.Buy(r.Context(), userID); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_premium": true})
}

func (a *API) handlePremiumRestore(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	restored, err := a.premium.Restore(r.Context(), userID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"restored": restored})
}
