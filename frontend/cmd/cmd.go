package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	ishell "github.com/abiosoft/ishell"
	"github.com/common-nighthawk/go-figure"
	"github.com/srkaul/goalmaster/frontend/client"
	"github.com/srkaul/goalmaster/lib/utils"
)

// guestCommands is a slice of Command structures containing commands that are available to users who have not signed in.
var guestCommands []Command

// userCommands is a slice of Command structures containing commands that are available only to signed in users.
var userCommands []Command

// commonCommands is a slice of Command structures containing commands that are available to all users, regardless of their login status.
var commonCommands []Command

// loggedIn is a boolean variable that indicates whether a user is currently signed in.
var loggedIn bool

// shell represents an instance of the interactive shell used for this application. Users can interact with the application by executing commands on this shell.
var shell *ishell.Shell

// The Command struct defines a user command in the system. Each command has a Name, a Desc (short for description), and a Func (the function to execute when the command is called).
type Command struct {
	Name string                   // Name is the name of the command.
	Desc string                   // Desc is a short description of what the command does.
	Func func(c *ishell.Context) // Func is the function that is executed when the command is invoked.
}

// InitCommands initializes the shell and sets up the commands for the guest
// and signed-in scenarios.
func InitCommands() {

	// Initialize shell
	shell = ishell.New()

	// Define the commands available to a guest user (not signed in)
	guestCommands = []Command{
		{
			Name: "signin",
			Desc: "Sign in to your account",
			Func: func(c *ishell.Context) {
				var email, password string
				for {
					c.Print("Enter Email: ")
					email = c.ReadLine()

					if utils.ValidateEmail(email) {
						break
					}
					c.Println("Email is not valid.")
				}

				for {
					c.Print("Enter Password: ")
					password = c.ReadPassword()

					if len(password) > 0 {
						break
					}
					c.Println("Password cannot be empty.")
				}

				err := client.SignIn(email, password)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				loggedIn = true
				c.Println("Welcome back, you are now signed in.")
				for _, command := range guestCommands {
					shell.DeleteCmd(command.Name)
				}
				addCommands(shell, userCommands)
			},
		},
		{
			Name: "signup",
			Desc: "Sign up for a new account",
			Func: func(c *ishell.Context) {
				var email, password string
				for {
					c.Print("Enter Email: ")
					email = c.ReadLine()

					if utils.ValidateEmail(email) {
						break
					}
					c.Println("Email is not valid.")
				}

				for {
					c.Print("Enter Password: ")
					password = c.ReadPassword()

					if utils.ValidatePassword(password) {
						c.Print("Confirm Password: ")
						confirmPassword := c.ReadPassword()

						if password == confirmPassword {
							break
						} else {
							c.Println()
							c.Println("Passwords do not match. Please try again.")
							c.Println()
						}
					} else {
						c.Println()
						c.Println("Password must be at least 8 characters and contain both letters and numbers.")
						c.Println()
					}
				}

				err := client.SignUp(email, password)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("Account created successfully. You are now signed in.")
				loggedIn = true
				for _, command := range guestCommands {
					shell.DeleteCmd(command.Name)
				}
				addCommands(shell, userCommands)
			},
		},
	}

	// Define the commands available to a signed in user
	userCommands = []Command{
		{
			Name: "updatemyacc",
			Desc: "Update your account information",
			Func: func(c *ishell.Context) {
				var currentPassword, newEmail, newPassword string

				for {
					c.Print("Enter Current Password: ")
					currentPassword = c.ReadPassword()

					if len(currentPassword) > 0 {
						break
					}
					c.Println("Current password cannot be empty.")
				}

				for {
					c.Print("Do you want to update your email? (yes/no): ")
					response := strings.ToLower(c.ReadLine())
					if response == "yes" || response == "no" {
						if response == "yes" {
							for {
								c.Print("Enter New Email: ")
								newEmail = c.ReadLine()

								if utils.ValidateEmail(newEmail) {
									break
								}
								c.Println("New email is not valid.")
							}
						}
						break
					}
					c.Println("Invalid response. Please type 'yes' or 'no'.")
				}

				for {
					c.Print("Do you want to update your password? (yes/no): ")
					response := strings.ToLower(c.ReadLine())
					if response == "yes" || response == "no" {
						if response == "yes" {
							for {
								c.Print("Enter New Password: ")
								newPassword = c.ReadPassword()

								if utils.ValidatePassword(newPassword) {
									c.Print("Confirm New Password: ")
									confirmPassword := c.ReadPassword()

									if newPassword == confirmPassword {
										break
									} else {
										c.Println()
										c.Println("Passwords do not match. Please try again.")
										c.Println()
									}
								} else {
									c.Println()
									c.Println("Password must be at least 8 characters and contain both letters and numbers.")
									c.Println()
								}
							}
						}
						break
					}
					c.Println("Invalid response. Please type 'yes' or 'no'.")
				}

				err := client.UpdateUser(currentPassword, newEmail, newPassword)
				if err != nil {
					if handleSessionExpired(err) {
						return
					}
					utils.PrintError(err.Error())
					return
				}
				c.Println("Account updated successfully.")
			},
		},
		{
			Name: "signout",
			Desc: "Sign out from your account",
			Func: func(c *ishell.Context) {
				err := client.SignOut()
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("You are now signed out.")
				switchToGuest()
			},
		},
		{
			Name: "deletemyacc",
			Desc: "Delete your account",
			Func: func(c *ishell.Context) {
				for {
					c.Print("Are you sure you want to delete your account? (yes/no): ")
					response := strings.ToLower(c.ReadLine())
					if response == "no" {
						return
					} else if response == "yes" {
						err := client.DeleteUser()
						if err != nil {
							if handleSessionExpired(err) {
								return
							}
							utils.PrintError(err.Error())
							return
						}
						c.Println("Account deleted successfully.")
						switchToGuest()
						return
					}
					c.Println("Invalid response. Please type 'yes' or 'no'.")
				}
			},
		},
	}

	userCommands = append(userCommands, categoryCommands()...)
	userCommands = append(userCommands, goalCommands()...)
	userCommands = append(userCommands, progressCommands()...)

	// Define common commands that are always available, regardless of login state
	commonCommands = []Command{
		{
			Name: "exit",
			Desc: "Exit the application",
			Func: func(c *ishell.Context) {
				fmt.Println("Goodbye!")
				os.Exit(0)
			},
		},
	}

	// The help command is created separately to avoid the cyclic dependency
	commonCommands = append(commonCommands, Command{
		Name: "help",
		Desc: "List available commands",
		Func: func(c *ishell.Context) {
			c.Println("Available commands:")
			if loggedIn {
				for _, command := range userCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			} else {
				for _, command := range guestCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			}
			for _, command := range commonCommands {
				c.Println("  |-- '" + command.Name + "' : " + command.Desc)
			}
			c.Println()
		},
	})
}

// switchToGuest drops the signed-in command set and restores the guest one.
func switchToGuest() {
	loggedIn = false
	for _, command := range userCommands {
		shell.DeleteCmd(command.Name)
	}
	addCommands(shell, guestCommands)
}

// handleSessionExpired checks whether err means the refresh token has run
// out. If so it clears the keyring, flips the shell back to the guest
// command set and reports true.
func handleSessionExpired(err error) bool {
	if err == nil || err.Error() != "expired refresh token" {
		return false
	}
	utils.PrintError("Session expired, please sign in again by typing 'signin' in the terminal.")
	client.ClearKeyring()
	switchToGuest()
	return true
}

// readIndex prompts until the user picks a number in [1..max] and returns
// the zero-based index. An empty line cancels and returns -1.
func readIndex(c *ishell.Context, prompt string, max int) int {
	for {
		c.Print(prompt)
		line := strings.TrimSpace(c.ReadLine())
		if line == "" {
			return -1
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= max {
			return n - 1
		}
		c.Printf("Please enter a number between 1 and %d, or press enter to cancel.\n", max)
	}
}

// addCommands is a helper function that adds the given commands to the shell.
func addCommands(shell *ishell.Shell, commands []Command) {
	for _, command := range commands {
		shell.AddCmd(&ishell.Cmd{
			Name: command.Name,
			Help: "Command: " + command.Name,
			Func: command.Func,
		})
	}
}

// motivationalQuotes is the pool the welcome banner draws from.
var motivationalQuotes = []string{
	"Small steps every day lead to big results.",
	"The body achieves what the mind believes.",
	"Success is the sum of small efforts, repeated day in and day out.",
	"You don't have to be great to start, but you have to start to be great.",
	"The future belongs to those who believe in the beauty of their dreams.",
}

// Execute is the main function that executes the shell.
// It welcomes the user, adds common and guest commands to the shell, and runs the shell.
func Execute() {
	shell.Println()
	figure.NewFigure("GoalMaster", "basic", true).Print()
	shell.Println("Welcome to GoalMaster -- the goal tracking CLI app. Type 'help' to see a list of commands.")
	shell.Println()
	shell.Println(motivationalQuotes[rand.Intn(len(motivationalQuotes))])

	addCommands(shell, commonCommands)
	addCommands(shell, guestCommands)

	shell.Run()
}
