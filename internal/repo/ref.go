package repo

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidRef is returned when a repository reference cannot be parsed.
var ErrInvalidRef = errors.New("invalid repository reference")

// Ref identifies a GitHub repository by owner and name.
type Ref struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

var segmentRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Parse accepts "owner/name", https://github.com/owner/name(.git)[/...],
// github.com/owner/name and git@github.com:owner/name.git.
func Parse(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, fmt.Errorf("%w: empty input", ErrInvalidRef)
	}

	if strings.HasPrefix(raw, "git@github.com:") {
		return fromPath(raw, strings.TrimPrefix(raw, "git@github.com:"))
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: %v", ErrInvalidRef, err)
		}
		host := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u.Host), "www."))
		if host != "github.com" {
			return Ref{}, fmt.Errorf("%w: only github.com is supported, got %q", ErrInvalidRef, u.Host)
		}
		return fromPath(raw, u.Path)
	}

	lower := strings.ToLower(raw)
	for _, prefix := range []string{"github.com/", "www.github.com/"} {
		if strings.HasPrefix(lower, prefix) {
			return fromPath(raw, raw[len(prefix):])
		}
	}

	// Bare owner/name; anything deeper than two segments is rejected so that
	// filesystem paths are not mistaken for repositories.
	if strings.Count(strings.Trim(raw, "/"), "/") != 1 {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, raw)
	}
	return fromPath(raw, raw)
}

// MustParse is Parse for literals in tests and static tables.
func MustParse(raw string) Ref {
	r, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}

func fromPath(raw, p string) (Ref, error) {
	owner, name, ok := splitOwnerRepo(p)
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, raw)
	}
	return Ref{Owner: owner, Name: name}, nil
}

func splitOwnerRepo(p string) (owner, name string, ok bool) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	parts := strings.Split(p, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	owner = strings.TrimSpace(parts[0])
	name = strings.TrimSuffix(strings.TrimSpace(parts[1]), ".git")
	if !segmentRE.MatchString(owner) || !segmentRE.MatchString(name) {
		return "", "", false
	}
	if name == "." || name == ".." {
		return "", "", false
	}
	return owner, name, true
}

// IsZero reports whether r is the zero value.
func (r Ref) IsZero() bool { return r.Owner == "" && r.Name == "" }

// String renders "owner/name".
func (r Ref) String() string { return r.Owner + "/" + r.Name }

// URL returns the canonical https URL of the repository.
func (r Ref) URL() string { return "https://github.com/" + r.String() }
