package frontend

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/srkaul/goalmaster/frontend/client"
	"github.com/srkaul/goalmaster/frontend/cmd"
)

// RunFrontend starts the interactive shell against an already running
// backend. Tokens saved in the keyring from a previous session keep the
// user signed in across restarts.
func RunFrontend() {

	// Load the .env file
	err := godotenv.Load("frontend/.env")
	if err != nil {
		fmt.Println("Error loading .env file")
	}

	// Read the environment variables
	signingKey := os.Getenv("JWT_SIGNING_KEY")
	authToken := os.Getenv("AUTH_TOKEN")
	authTokenRefresh := os.Getenv("AUTH_TOKEN_REFRESH")
	serverURL := os.Getenv("SERVER_URL")

	client.InitClient(serverURL, signingKey, authToken, authTokenRefresh)
	cmd.InitCommands()
	cmd.Execute()
}
