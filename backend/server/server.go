package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/srkaul/goalmaster/backend/goals"
	"github.com/srkaul/goalmaster/backend/premium"
	contextKey "github.com/srkaul/goalmaster/backend/server/context_key"
	"github.com/srkaul/goalmaster/backend/xp"
)

// jwtMiddleware reads the JWT from the Authorization header. If a valid
// token is present, the user's ID from its claims is injected into the
// request context under contextKey.UserIDKey. If the token is expired
// but the claims can still be read, the ID is injected together with
// contextKey.TokenExpiredKey so that only the refresh endpoint can
// identify the caller. Parse errors are injected under
// contextKey.JwtErrorKey. The middleware never terminates the request
// itself; handlers decide how to react to a missing identity.
func jwtMiddleware(signingKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			splitToken := strings.Split(authHeader, "Bearer ")
			if len(splitToken) == 2 {
				token, err := jwt.Parse(splitToken[1], func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
					}
					return []byte(signingKey), nil
				})
				if err != nil {
					if err, ok := err.(*jwt.ValidationError); ok && err.Errors == jwt.ValidationErrorExpired {
						if claims, ok := token.Claims.(jwt.MapClaims); ok {
							ctx := context.WithValue(r.Context(), contextKey.UserIDKey, claims["id"])
							ctx = context.WithValue(ctx, contextKey.TokenExpiredKey, true)
							r = r.WithContext(ctx)
						}
					} else {
						log.Println("JWT token validation error:", err)
						ctx := context.WithValue(r.Context(), contextKey.JwtErrorKey, err)
						r = r.WithContext(ctx)
					}
				} else if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
					ctx := context.WithValue(r.Context(), contextKey.UserIDKey, claims["id"])
					r = r.WithContext(ctx)
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from handler panics and returns a generic
// error to the client.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %s\n", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Router builds the REST router with the full middleware chain:
// recovery, JWT claim extraction, CORS, request logging.
func Router(signingKey string, api *API) http.Handler {
	r := mux.NewRouter()

	wrap := func(h http.HandlerFunc) http.Handler {
		return recoveryMiddleware(jwtMiddleware(signingKey, h))
	}

	// Account endpoints.
	r.Handle("/auth/signup", wrap(api.handleSignUp)).Methods("POST")
	r.Handle("/auth/signin", wrap(api.handleSignIn)).Methods("POST")
	r.Handle("/auth/refresh", wrap(api.handleRefresh)).Methods("POST")
	r.Handle("/auth/account", wrap(api.handleUpdateAccount)).Methods("PATCH")
	r.Handle("/auth/account", wrap(api.handleDeleteAccount)).Methods("DELETE")

	// Categories.
	r.Handle("/api/categories", wrap(api.handleListCategories)).Methods("GET")
	r.Handle("/api/categories", wrap(api.handleCreateCategory)).Methods("POST")
	r.Handle("/api/categories/{id}", wrap(api.handleDeleteCategory)).Methods("DELETE")

	// Goals.
	r.Handle("/api/goals", wrap(api.handleListGoals)).Methods("GET")
	r.Handle("/api/goals", wrap(api.handleCreateGoal)).Methods("POST")
	r.Handle("/api/goals/{id}", wrap(api.handleUpdateGoal)).Methods("PATCH")
	r.Handle("/api/goals/{id}", wrap(api.handleDeleteGoal)).Methods("DELETE")

	// Steps.
	r.Handle("/api/goals/{id}/steps", wrap(api.handleListSteps)).Methods("GET")
	r.Handle("/api/goals/{id}/steps", wrap(api.handleAddStep)).Methods("POST")
	r.Handle("/api/steps/{id}", wrap(api.handleUpdateStep)).Methods("PATCH")
	r.Handle("/api/steps/{id}", wrap(api.handleDeleteStep)).Methods("DELETE")
	r.Handle("/api/steps/{id}/toggle", wrap(api.handleToggleStep)).Methods("POST")
	r.Handle("/api/steps/{id}/move", wrap(api.handleMoveStep)).Methods("POST")

	// Archive and reflections.
	r.Handle("/api/goals/{id}/archive", wrap(api.handleArchiveGoal)).Methods("POST")
	r.Handle("/api/completed", wrap(api.handleListCompleted)).Methods("GET")
	r.Handle("/api/completed/{id}/reopen", wrap(api.handleReopenGoal)).Methods("POST")
	r.Handle("/api/completed/{id}/reflection", wrap(api.handleSaveReflection)).Methods("PUT")
	r.Handle("/api/completed/{id}/reflection/draft", wrap(api.handleReflectionDraft)).Methods("GET")
	r.Handle("/api/completed/{id}/reflection/draft", wrap(api.handleSaveReflectionDraft)).Methods("PUT")

	// Progress and XP.
	r.Handle("/api/progress", wrap(api.handleProgress)).Methods("GET")
	r.Handle("/api/xp", wrap(api.handleXPStatus)).Methods("GET")
	r.Handle("/api/xp/reward", wrap(api.handleSetReward)).Methods("PUT")

	// Premium.
	r.Handle("/api/premium/status", wrap(api.handlePremiumStatus)).Methods("GET")
	r.Handle("/api/premium/purchase", wrap(api.handlePremiumPurchase)).Methods("POST")
	r.Handle("/api/premium/restore", wrap(api.handlePremiumRestore)).Methods("POST")

	corsOrigins := handlers.AllowedOrigins([]string{"*"})
	corsMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	corsHeaders := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})
	corsRouter := handlers.CORS(corsOrigins, corsMethods, corsHeaders)(r)

	return handlers.LoggingHandler(os.Stdout, corsRouter)
}

// Start runs the REST server at the host of serverURL. It blocks until
// the server stops.
func Start(serverURL, signingKey string, goalService *goals.Service, ledger *xp.Ledger, premiumService *premium.Service) {
	api := NewAPI(goalService, ledger, premiumService)

	u, err := url.Parse(serverURL)
	if err != nil {
		panic(err)
	}

	server := &http.Server{
		Handler:      Router(signingKey, api),
		Addr:         u.Host,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.Fatal(server.ListenAndServe())
}
