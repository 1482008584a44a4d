package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/srkaul/goalmaster/backend"
	"github.com/srkaul/goalmaster/frontend"
)

func main() {
	// Load the .env file
	err := godotenv.Load()
	if err != nil {
		fmt.Println("Error loading .env file")
	}

	// Set default values if the environment variables are empty
	if os.Getenv("JWT_SIGNING_KEY") == "" {
		os.Setenv("JWT_SIGNING_KEY", "your_default_signing_key")
	}
	if os.Getenv("AUTH_TOKEN") == "" {
		os.Setenv("AUTH_TOKEN", "goalmaster_auth_token")
	}
	if os.Getenv("AUTH_TOKEN_REFRESH") == "" {
		os.Setenv("AUTH_TOKEN_REFRESH", "goalmaster_auth_token_refresh")
	}
	if os.Getenv("SERVER_URL") == "" {
		os.Setenv("SERVER_URL", "http://localhost:8080")
	}

	// Run the backend in-process and hand the terminal to the shell.
	go backend.RunBackend()
	frontend.RunFrontend()
}
