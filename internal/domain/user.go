// Package domain contains entity without transport logic, just meta-data
// and the per-address lifecycle rules.
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxUsernameLen  = 36
	DefaultUsername = "Unknown"
)

var ErrUsernameTooLong = errors.New("username too long")

// NormalizeUsername trims the name a client registered with. An empty name
// becomes DefaultUsername.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return DefaultUsername, nil
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return username, nil
}

// TruncateUsername is NormalizeUsername for callers that must not reject.
func TruncateUsername(username string) string {
	name, err := NormalizeUsername(username)
	if err == nil {
		return name
	}
	runes := []rune(strings.TrimSpace(username))
	return string(runes[:MaxUsernameLen])
}
