package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/form3tech-oss/jwt-go"
	"github.com/zalando/go-keyring"

	"github.com/srkaul/goalmaster/lib/utils"
)

// jwtSigningKey is used to verify JWT tokens locally before use.
var jwtSigningKey string

// KeyringKey is used to store and retrieve the JWT token from the system keyring.
var KeyringKey string

// RefreshKeyringKey is used to store and retrieve the refresh token from the system keyring.
var RefreshKeyringKey string

// ServerURL is the URL of the server the client is connecting to.
var ServerURL string

// client is the HTTP client used to make requests to the server.
var client = &http.Client{}

// KeyringService is the name of the service in the system keyring where the JWT token and refresh token are stored.
const KeyringService = "GoalMaster"

// TokenResult represents the token pair returned by the auth endpoints.
type TokenResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// InitClient initializes the connection parameters and keyring keys.
// This function must be called before using any other functions in the package.
func InitClient(serverURL, signingKey, authToken, authTokenRefresh string) {
	jwtSigningKey = signingKey
	KeyringKey = authToken
	RefreshKeyringKey = authTokenRefresh
	ServerURL = serverURL
}

// decodeJWT decodes a JWT token and returns the claims contained within it.
// Returns the claims if the token is valid, else an error.
func decodeJWT(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSigningKey), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// isJwtTokenInKeyring checks if the system keyring contains a JWT token.
// Returns 'true' and the token if it exists, 'false' and an empty string if it doesn't.
func isJwtTokenInKeyring() (bool, string, error) {
	jwtToken, err := keyring.Get(KeyringService, KeyringKey)
	if err != nil {
		if err == keyring.ErrNotFound {
			return false, "", nil
		}
		return false, "", errors.New("failed to access keyring: " + err.Error())
	}
	return true, jwtToken, nil
}

// ClearKeyring clears the JWT token and refresh token from the system keyring atomically.
func ClearKeyring() error {
	accessToken, err := keyring.Get(KeyringService, KeyringKey)
	if err != nil {
		return errors.New("failed to retrieve access token from keyring: " + err.Error())
	}

	err = keyring.Delete(KeyringService, KeyringKey)
	if err != nil {
		return errors.New("failed to delete access token from keyring: " + err.Error())
	}

	err = keyring.Delete(KeyringService, RefreshKeyringKey)
	if err != nil {
		keyring.Set(KeyringService, KeyringKey, accessToken)
		return errors.New("failed to delete refresh token from keyring: " + err.Error())
	}

	return nil
}

// saveTokens writes a token pair to the keyring atomically.
func saveTokens(result *TokenResult) error {
	if err := keyring.Set(KeyringService, KeyringKey, result.Token); err != nil {
		return err
	}
	if result.RefreshToken != "" {
		if err := keyring.Set(KeyringService, RefreshKeyringKey, result.RefreshToken); err != nil {
			keyring.Delete(KeyringService, KeyringKey)
			return err
		}
	}
	return nil
}

// IsUserAuthenticated checks if a valid JWT token exists in the system
// keyring. An expired token is refreshed transparently using the stored
// refresh token. Returns the usable token, or an empty string when no
// user is signed in.
func IsUserAuthenticated() (string, error) {
	hasJwt, tokenStr, err := isJwtTokenInKeyring()
	if err != nil {
		return "", err
	}

	if !hasJwt {
		return "", nil
	}

	_, err = decodeJWT(tokenStr)
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			if ve.Errors&jwt.ValidationErrorExpired != 0 {
				newToken, refreshErr := RefreshAccessToken(tokenStr)
				if refreshErr != nil {
					return "", refreshErr
				}
				return newToken, nil
			}
		}
		return "", err
	}

	return tokenStr, nil
}

// sendRequest sends a JSON request to the server. On a 2xx response the
// body is decoded into out (when non-nil); otherwise the server's error
// message is returned.
func sendRequest(method, path string, token *string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		marshaled, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to create request: %v", err)
		}
		reqBody = bytes.NewBuffer(marshaled)
	}

	req, err := http.NewRequest(method, ServerURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != nil {
		req.Header.Add("Authorization", "Bearer "+*token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errorBody struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(bodyBytes, &errorBody); err == nil && errorBody.Error != "" {
			return errors.New(errorBody.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return err
		}
	}
	return nil
}

// authedRequest sends a request with the signed-in user's token.
func authedRequest(method, path string, body interface{}, out interface{}) error {
	token, err := IsUserAuthenticated()
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("no user is currently signed in")
	}
	return sendRequest(method, path, &token, body, out)
}

// RefreshAccessToken exchanges the stored refresh token for a new token
// pair. Returns the refreshed access token if successful.
func RefreshAccessToken(tokenStr string) (string, error) {
	refreshToken, err := keyring.Get(KeyringService, RefreshKeyringKey)
	if err != nil {
		return "", err
	}

	var result TokenResult
	err = sendRequest("POST", "/auth/refresh", &tokenStr, map[string]string{
		"refresh_token": refreshToken,
	}, &result)
	if err != nil {
		return "", err
	}

	if err := saveTokens(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

// SignIn signs in a user with the provided email and password and saves
// the returned token pair to the keyring.
func SignIn(email, password string) error {
	isSignedIn, _, err := isJwtTokenInKeyring()
	if err != nil {
		return err
	}
	if isSignedIn {
		return errors.New("a user is already signed in")
	}

	var result TokenResult
	err = sendRequest("POST", "/auth/signin", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &result)
	if err != nil {
		return err
	}

	return saveTokens(&result)
}

// SignUp registers a new account and saves the returned token pair to
// the keyring.
func SignUp(email, password string) error {
	isSignedIn, _, err := isJwtTokenInKeyring()
	if err != nil {
		return err
	}
	if isSignedIn {
		return errors.New("a user is already signed in")
	}

	if !utils.ValidateEmail(email) {
		return errors.New("invalid email format")
	}
	if !utils.ValidatePassword(password) {
		return errors.New("password must be at least 8 characters and contain both letters and numbers")
	}

	var result TokenResult
	err = sendRequest("POST", "/auth/signup", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &result)
	if err != nil {
		return err
	}

	return saveTokens(&result)
}

// UpdateUser changes the signed-in user's email or password. The current
// password is required for authentication.
func UpdateUser(currentPassword, newEmail, newPassword string) error {
	if newEmail == "" && newPassword == "" {
		return errors.New("nothing to update")
	}
	if newEmail != "" && !utils.ValidateEmail(newEmail) {
		return errors.New("new email is in invalid format")
	}
	if newPassword != "" && !utils.ValidatePassword(newPassword) {
		return errors.New("new password must be at least 8 characters and contain both letters and numbers")
	}

	return authedRequest("PATCH", "/auth/account", map[string]string{
		"current_password": currentPassword,
		"new_email":        newEmail,
		"new_password":     newPassword,
	}, nil)
}

// SignOut signs out the current user by removing the tokens from the
// system keyring.
func SignOut() error {
	token, err := IsUserAuthenticated()
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("no user is currently signed in")
	}
	return ClearKeyring()
}

// DeleteUser deletes the currently authenticated account and clears the
// keyring.
func DeleteUser() error {
	if err := authedRequest("DELETE", "/auth/account", nil, nil); err != nil {
		return err
	}
	return ClearKeyring()
}
