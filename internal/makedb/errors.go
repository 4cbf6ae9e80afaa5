package makedb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolNotFound is returned when the make executable cannot be found.
	ErrToolNotFound = errors.New("make executable not found")
	// ErrToolTimeout is returned when the database dump exceeds its time bound.
	ErrToolTimeout = errors.New("make database dump timed out")
	// ErrMalformedInput is returned when the Makefile cannot be read.
	ErrMalformedInput = errors.New("unreadable makefile")
)

// ToolFailureError reports a non-zero exit from the make process.
type ToolFailureError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ToolFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s exited with status %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stdout); s != "" {
		fmt.Fprintf(&b, "\nstdout: %s", s)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, "\nstderr: %s", s)
	}
	return b.String()
}
