package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/stretchr/testify/assert"

	"github.com/srkaul/goalmaster/backend/goals"
	"github.com/srkaul/goalmaster/backend/premium"
	"github.com/srkaul/goalmaster/backend/server/auth"
	cache "github.com/srkaul/goalmaster/backend/storage/cache"
	storage "github.com/srkaul/goalmaster/backend/storage/persistent"
	"github.com/srkaul/goalmaster/backend/xp"
)

const testSigningKey = "test-signing-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := storage.NewMemoryStorage()
	c := cache.NewMemoryCache()
	auth.InitAuth(store, testSigningKey)

	ledger := xp.NewLedger(store, c)
	premiumService := premium.NewService(store, c, nil)
	goalService := goals.NewService(store, c, ledger, premiumService, nil, true)

	server := httptest.NewServer(Router(testSigningKey, NewAPI(goalService, ledger, premiumService)))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, token string, body interface{}, out interface{}) int {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	req, err := http.NewRequest(method, url, &reqBody)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func signUp(t *testing.T, server *httptest.Server, email string) string {
	t.Helper()
	var tokens struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}
	status := doJSON(t, "POST", server.URL+"/auth/signup", "", map[string]string{
		"email":    email,
		"password": "password123",
	}, &tokens)
	assert.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, tokens.Token)
	return tokens.Token
}

func TestDataEndpointsRequireAuth(t *testing.T) {
	server := newTestServer(t)

	for _, route := range []string{"/api/goals", "/api/categories", "/api/progress", "/api/xp"} {
		status := doJSON(t, "GET", server.URL+route, "", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, status, route)
	}
}

func TestExpiredTokenOnlyRefreshes(t *testing.T) {
	server := newTestServer(t)

	var tokens struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}
	status := doJSON(t, "POST", server.URL+"/auth/signup", "", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
	}, &tokens)
	assert.Equal(t, http.StatusCreated, status)

	parsed, err := jwt.Parse(tokens.Token, func(*jwt.Token) (interface{}, error) {
		return []byte(testSigningKey), nil
	})
	assert.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  claims["id"],
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	expiredToken, err := expired.SignedString([]byte(testSigningKey))
	assert.NoError(t, err)

	// An expired access token must not read data.
	status = doJSON(t, "GET", server.URL+"/api/categories", expiredToken, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// But its identity may still trade a valid refresh token for a new pair.
	var refreshed struct {
		Token string `json:"token"`
	}
	status = doJSON(t, "POST", server.URL+"/auth/refresh", expiredToken, map[string]string{
		"refresh_token": tokens.RefreshToken,
	}, &refreshed)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, refreshed.Token)

	status = doJSON(t, "GET", server.URL+"/api/categories", refreshed.Token, nil, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestSignUpAndSignIn(t *testing.T) {
	server := newTestServer(t)
	signUp(t, server, "user@example.com")

	var tokens struct {
		Token string `json:"token"`
	}
	status := doJSON(t, "POST", server.URL+"/auth/signin", "", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
	}, &tokens)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, tokens.Token)

	status = doJSON(t, "POST", server.URL+"/auth/signin", "", map[string]string{
		"email":    "user@example.com",
		"password": "wrongpass1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGoalStepToggleFlow(t *testing.T) {
	server := newTestServer(t)
	token := signUp(t, server, "user@example.com")

	var category struct {
		ID string `json:"id"`
	}
	status := doJSON(t, "POST", server.URL+"/api/categories", token, map[string]string{
		"name":      "Health",
		"color_tag": "#00ff00",
	}, &category)
	assert.Equal(t, http.StatusCreated, status)

	var goal struct {
		ID           string `json:"id"`
		CategoryName string `json:"category_name"`
	}
	status = doJSON(t, "POST", server.URL+"/api/goals", token, map[string]interface{}{
		"answers":     map[string]string{"what": "Run 5k"},
		"category_id": category.ID,
	}, &goal)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Health", goal.CategoryName)

	var step struct {
		ID    string `json:"id"`
		Order int    `json:"order"`
	}
	status = doJSON(t, "POST", server.URL+"/api/goals/"+goal.ID+"/steps", token, map[string]string{
		"text":    "Couch to 5k week 1",
		"urgency": "High",
	}, &step)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 0, step.Order)

	var toggle struct {
		GoalComplete bool `json:"goal_complete"`
		XPAwarded    int  `json:"xp_awarded"`
		Step         struct {
			Completed bool `json:"completed"`
		} `json:"step"`
	}
	status = doJSON(t, "POST", server.URL+"/api/steps/"+step.ID+"/toggle", token, nil, &toggle)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, toggle.Step.Completed)
	assert.True(t, toggle.GoalComplete)
	assert.Equal(t, 10, toggle.XPAwarded)

	var xpStatus struct {
		XP    int `json:"xp"`
		Level int `json:"level"`
	}
	status = doJSON(t, "GET", server.URL+"/api/xp", token, nil, &xpStatus)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 10, xpStatus.XP)
	assert.Equal(t, 1, xpStatus.Level)

	var progressResp struct {
		Summaries []struct {
			Name            string  `json:"name"`
			GoalCount       int     `json:"goal_count"`
			ProgressPercent float64 `json:"progress_percent"`
		} `json:"summaries"`
	}
	status = doJSON(t, "GET", server.URL+"/api/progress", token, nil, &progressResp)
	assert.Equal(t, http.StatusOK, status)
	if assert.Len(t, progressResp.Summaries, 1) {
		assert.Equal(t, "Health", progressResp.Summaries[0].Name)
		assert.Equal(t, float64(100), progressResp.Summaries[0].ProgressPercent)
	}
}

func TestArchiveAndReopenEndpoints(t *testing.T) {
	server := newTestServer(t)
	token := signUp(t, server, "user@example.com")

	var goal struct {
		ID string `json:"id"`
	}
	doJSON(t, "POST", server.URL+"/api/goals", token, map[string]interface{}{
		"answers": map[string]string{"what": "Read a book"},
	}, &goal)

	var step struct {
		ID string `json:"id"`
	}
	doJSON(t, "POST", server.URL+"/api/goals/"+goal.ID+"/steps", token, map[string]string{
		"text": "Finish it",
	}, &step)

	// Archiving before the step is complete fails.
	status := doJSON(t, "POST", server.URL+"/api/goals/"+goal.ID+"/archive", token, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	doJSON(t, "POST", server.URL+"/api/steps/"+step.ID+"/toggle", token, nil, nil)

	var completed struct {
		ID string `json:"id"`
	}
	status = doJSON(t, "POST", server.URL+"/api/goals/"+goal.ID+"/archive", token, nil, &completed)
	assert.Equal(t, http.StatusCreated, status)

	var list []struct {
		ID string `json:"id"`
	}
	status = doJSON(t, "GET", server.URL+"/api/completed", token, nil, &list)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, list, 1)

	status = doJSON(t, "POST", server.URL+"/api/completed/"+completed.ID+"/reopen", token, nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status = doJSON(t, "GET", server.URL+"/api/completed", token, nil, &list)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, list)
}

func TestFreeTierLimitOverHTTP(t *testing.T) {
	server := newTestServer(t)
	token := signUp(t, server, "user@example.com")

	for i := 0; i < goals.FreeMaxGoals; i++ {
		status := doJSON(t, "POST", server.URL+"/api/goals", token, map[string]interface{}{
			"answers": map[string]string{"what": fmt.Sprintf("Goal %d", i)},
		}, nil)
		assert.Equal(t, http.StatusCreated, status)
	}

	status := doJSON(t, "POST", server.URL+"/api/goals", token, map[string]interface{}{
		"answers": map[string]string{"what": "One more"},
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestReflectionPremiumGateOverHTTP(t *testing.T) {
	server := newTestServer(t)
	token := signUp(t, server, "user@example.com")

	var goal struct {
		ID string `json:"id"`
	}
	doJSON(t, "POST", server.URL+"/api/goals", token, map[string]interface{}{
		"answers": map[string]string{"what": "Read a book"},
	}, &goal)
	var step struct {
		ID string `json:"id"`
	}
	doJSON(t, "POST", server.URL+"/api/goals/"+goal.ID+"/steps", token, map[string]string{"text": "Finish it"}, &step)
	doJSON(t, "POST", server.URL+"/api/steps/"+step.ID+"/toggle", token, nil, nil)

	var completed struct {
		ID string `json:"id"`
	}
	doJSON(t, "POST", server.URL+"/api/goals/"+goal.ID+"/archive", token, nil, &completed)

	status := doJSON(t, "PUT", server.URL+"/api/completed/"+completed.ID+"/reflection", token, map[string]string{
		"text": "It was worth it.",
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Drafts are not premium gated, so the text can be parked for later.
	status = doJSON(t, "PUT", server.URL+"/api/completed/"+completed.ID+"/reflection/draft", token, map[string]string{
		"text": "It was worth it.",
	}, nil)
	assert.Equal(t, http.StatusOK, status)

	var draft struct {
		Text string `json:"text"`
	}
	status = doJSON(t, "GET", server.URL+"/api/completed/"+completed.ID+"/reflection/draft", token, nil, &draft)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "It was worth it.", draft.Text)
}
