// Package runner executes registry login and image copy actions with crane's
// command-line protocol, either through the crane binary or in-process.
package runner

import (
	"context"
	"fmt"
	"strings"
)

// Runner runs one crane invocation and returns its combined output. A non-zero
// exit status is reported as *ExitError.
type Runner interface {
	Run(ctx context.Context, args []string) ([]byte, error)
}

// ExitError is returned when an action exits with a non-zero status.
type ExitError struct {
	Args   []string
	Status int
	Output []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("crane %s: exit status %d", strings.Join(Redact(e.Args), " "), e.Status)
}

// LoginArgs builds the argv for a registry login.
func LoginArgs(username, password, server string) []string {
	return []string{"auth", "login", "-u", username, "-p", password, server}
}

// LogoutArgs builds the argv for erasing a registry login.
func LogoutArgs(server string) []string {
	return []string{"auth", "logout", server}
}

// CopyArgs builds the argv for copying src to dst.
func CopyArgs(src, dst string) []string {
	return []string{"cp", src, dst}
}

// Login runs a registry login.
func Login(ctx context.Context, r Runner, username, password, server string) ([]byte, error) {
	return r.Run(ctx, LoginArgs(username, password, server))
}

// Logout erases a registry login.
func Logout(ctx context.Context, r Runner, server string) ([]byte, error) {
	return r.Run(ctx, LogoutArgs(server))
}

// Copy copies src to dst.
func Copy(ctx context.Context, r Runner, src, dst string) ([]byte, error) {
	return r.Run(ctx, CopyArgs(src, dst))
}

// Redact masks password arguments so argv can be logged.
func Redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out); i++ {
		switch {
		case out[i] == "-p" || out[i] == "--password":
			if i+1 < len(out) {
				out[i+1] = "****"
				i++
			}
		case strings.HasPrefix(out[i], "--password="):
			out[i] = "--password=****"
		}
	}
	return out
}
