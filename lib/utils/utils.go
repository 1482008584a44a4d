package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidateEmail reports whether the input is a well-formed email address.
func ValidateEmail(email string) bool {
	const emailPattern = `^(?i)[a-z0-9._%+\-]+@(?:[a-z0-9\-]+\.)+[a-z]{2,}$`
	matched, err := regexp.MatchString(emailPattern, email)
	return err == nil && matched
}

// ValidatePassword reports whether the password is at least 8 characters
// and contains both letters and numbers.
func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	containsLetter, _ := regexp.MatchString(`[a-zA-Z]`, password)
	containsNumber, _ := regexp.MatchString(`[0-9]`, password)
	return containsLetter && containsNumber
}

// ValidateDeadline reports whether the input is an RFC 3339 timestamp.
// An empty deadline is valid; it means none was set.
func ValidateDeadline(deadline string) bool {
	if deadline == "" {
		return true
	}
	_, err := time.Parse(time.RFC3339, deadline)
	return err == nil
}

// PrintError prints a message inside a banner so it stands out in the
// shell.
func PrintError(message string) {
	message = "ERROR: " + message
	bannerChar := "="
	bannerLength := len(message) + 4
	bannerLine := strings.Repeat(bannerChar, bannerLength)

	fmt.Println(bannerLine)
	fmt.Printf("%s %s %s\n", bannerChar, message, bannerChar)
	fmt.Println(bannerLine)
	fmt.Println()
}
