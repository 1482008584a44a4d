package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/srkaul/goalmaster/backend/models"
	storage "github.com/srkaul/goalmaster/backend/storage/persistent"
	"github.com/srkaul/goalmaster/lib/utils"
)

// store holds the storage backend used by the authentication system.
var store storage.StorageInterface

// jwtSigningKey holds the key used for signing and verifying JWT tokens.
var jwtSigningKey string

// Token lifetimes. The short auth token is refreshed transparently by
// the client using the refresh token.
const (
	authTokenTTL    = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

// InitAuth wires the authentication system to a storage backend and a
// signing key. It must be called before any other function in this
// package.
func InitAuth(s storage.StorageInterface, signingKey string) {
	if s == nil {
		panic("auth: storage backend is required")
	}
	if signingKey == "" {
		panic("auth: signing key is required")
	}
	store = s
	jwtSigningKey = signingKey
}

// CreateAuthToken creates a signed short-lived JWT for a user.
func CreateAuthToken(userId string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userId,
		"exp": time.Now().Add(authTokenTTL).Unix(),
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString([]byte(jwtSigningKey))

	if err != nil {
		return "", errors.New("failed to create auth token")
	}

	return signedToken, nil
}

// CreateRefreshToken creates a signed refresh JWT for a user.
func CreateRefreshToken(userId string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userId,
		"exp": time.Now().Add(refreshTokenTTL).Unix(),
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString([]byte(jwtSigningKey))

	if err != nil {
		return "", errors.New("failed to create refresh token")
	}

	return signedToken, nil
}

// CreateTokens creates an auth token and a refresh token pair.
func CreateTokens(userId string) (string, string, error) {
	authToken, authErr := CreateAuthToken(userId)
	if authErr != nil {
		return "", "", authErr
	}

	refreshToken, refreshErr := CreateRefreshToken(userId)
	if refreshErr != nil {
		return "", "", refreshErr
	}

	return authToken, refreshToken, nil
}

// SignUp registers a new account. The email must be well formed and
// unused; the password must satisfy the complexity rules. On success a
// token pair for the new user is returned.
func SignUp(email string, password string) (string, string, error) {
	if !utils.ValidateEmail(email) {
		return "", "", errors.New("invalid email format")
	}

	if !utils.ValidatePassword(password) {
		return "", "", errors.New("password must be at least 8 characters and contain both letters and numbers")
	}

	foundUser, err := store.FindUser(context.Background(), bson.M{"email": email})
	if err != nil && err != mongo.ErrNoDocuments {
		return "", "", err
	}

	if foundUser != nil {
		return "", "", errors.New("an account with this email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}

	user := &models.User{
		ID:           primitive.NewObjectID(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		XP:           0,
		Level:        1,
		CreatedAt:    time.Now(),
	}

	if _, err = store.AddUser(context.Background(), user); err != nil {
		return "", "", err
	}

	return CreateTokens(user.ID.Hex())
}

// SignIn authenticates an existing account and returns a token pair.
// Lookup and password failures are collapsed into one error so callers
// cannot probe which emails exist.
func SignIn(email string, password string) (string, string, error) {
	if !utils.ValidateEmail(email) {
		return "", "", errors.New("invalid email format")
	}

	foundUser, err := store.FindUser(context.Background(), bson.M{"email": email})
	if err != nil {
		return "", "", errors.New("authentication failed")
	}

	err = bcrypt.CompareHashAndPassword([]byte(foundUser.PasswordHash), []byte(password))
	if err != nil {
		return "", "", errors.New("authentication failed")
	}

	return CreateTokens(foundUser.ID.Hex())
}

// RefreshToken validates a refresh token and, when it is valid and
// belongs to the given user, issues a new token pair.
func RefreshToken(userId string, refreshToken string) (string, string, error) {
	token, err := jwt.Parse(refreshToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSigningKey), nil
	})

	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			if ve.Errors == jwt.ValidationErrorExpired {
				return "", "", errors.New("expired refresh token")
			}
		}
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", errors.New("invalid refresh token")
	}

	if claims["id"] != userId {
		return "", "", errors.New("invalid refresh token")
	}

	return CreateTokens(userId)
}

// UpdateUser changes an account's email or password. The current
// password is required for either change.
func UpdateUser(userId, currentPassword, newEmail, newPassword string) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(userId)
	if err != nil {
		return false, err
	}

	foundUser, err := store.FindUser(context.Background(), bson.M{"_id": objectID})
	if err != nil {
		return false, errors.New("authentication failed")
	}

	err = bcrypt.CompareHashAndPassword([]byte(foundUser.PasswordHash), []byte(currentPassword))
	if err != nil {
		return false, errors.New("authentication failed")
	}

	update := bson.M{
		"$set": bson.M{},
	}

	if newEmail != "" {
		if !utils.ValidateEmail(newEmail) {
			return false, errors.New("invalid email format")
		}
		existingUser, err := store.FindUser(context.Background(), bson.M{"email": newEmail})
		if existingUser != nil || err == nil {
			return false, errors.New("email already in use")
		}
		update["$set"].(bson.M)["email"] = newEmail
	}

	if newPassword != "" {
		if !utils.ValidatePassword(newPassword) {
			return false, errors.New("password must be at least 8 characters and contain both letters and numbers")
		}
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return false, err
		}
		update["$set"].(bson.M)["password_hash"] = string(hashedPassword)
	}

	if len(update["$set"].(bson.M)) == 0 {
		return false, errors.New("nothing to update")
	}

	_, err = store.UpdateUser(context.Background(), bson.M{"_id": objectID}, update)
	if err != nil {
		return false, errors.New("internal server error updating user")
	}

	return true, nil
}

// DeleteUser removes an account. The storage layer cascades the delete
// to every document the user owns.
func DeleteUser(userId string) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(userId)
	if err != nil {
		return false, err
	}

	_, err = store.DeleteUser(context.Background(), bson.M{"_id": objectID})
	if err != nil {
		return false, errors.New("error deleting user")
	}

	return true, nil
}
