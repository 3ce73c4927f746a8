package fetch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents a classification of page fetch failures.
type ErrorClass string

const (
	// ErrorClassNotFound marks the end of the archive: 404/410 or a soft-404 page.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassClient represents other 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassContent represents unreadable or unparsable bodies.
	ErrorClassContent ErrorClass = "content"
)

// Error is a classified page fetch failure.
type Error struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err signals the end of the archive.
//
// A classified *Error is judged by its class alone, even when its message
// quotes a URL containing "404". Any other error counts when its message
// contains "404" or "not found".
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class == ErrorClassNotFound
	}
	return signalsNotFound(err.Error())
}

// ClassOf returns the class of a fetch failure, or "" for unclassified errors.
func ClassOf(err error) ErrorClass {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ""
}

func signalsNotFound(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == 404 || status == 410:
		return ErrorClassNotFound
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
