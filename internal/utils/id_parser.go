// Package utils provides issue ID parsing and resolution.
package utils

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is matched by resolution errors for tokens with no match.
var ErrNotFound = errors.New("no issue found")

// ErrAmbiguous is matched by resolution errors for tokens with several matches.
var ErrAmbiguous = errors.New("ambiguous issue ID")

// ResolveError carries the offending token and, when ambiguous, every match.
type ResolveError struct {
	Token   string
	Matches []string
	Err     error // ErrNotFound or ErrAmbiguous
}

func (e *ResolveError) Error() string {
	if errors.Is(e.Err, ErrAmbiguous) {
		return fmt.Sprintf("ambiguous ID %q matches %d issues: %v\nUse more characters to disambiguate",
			e.Token, len(e.Matches), e.Matches)
	}
	return fmt.Sprintf("no issue found matching %q", e.Token)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// ExistsFunc reports whether id names an existing issue.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// FindByHashFunc returns every issue id whose hash matches fragment.
type FindByHashFunc func(ctx context.Context, fragment string) ([]string, error)

// IDResolver maps user-supplied tokens to canonical issue IDs.
// It never touches a store directly, only the two callbacks.
type IDResolver struct {
	// Prefix is the configured issue prefix without the trailing hyphen ("wb").
	// Empty disables prefix normalization.
	Prefix     string
	Exists     ExistsFunc
	FindByHash FindByHashFunc
}

// NewIDResolver builds a resolver over the given callbacks.
func NewIDResolver(prefix string, exists ExistsFunc, findByHash FindByHashFunc) *IDResolver {
	return &IDResolver{
		Prefix:     strings.TrimSuffix(prefix, "-"),
		Exists:     exists,
		FindByHash: findByHash,
	}
}

// Resolve resolves a full ID, a bare hash ("a3f8e9"), or a hash fragment
// ("a3f") to exactly one ID.
//
// Order:
//  1. exact ID match, returned unchanged
//  2. prefix-normalized exact match ("a3f8e9" -> "wb-a3f8e9")
//  3. hash fragment lookup: one match wins, zero is ErrNotFound,
//     more than one is ErrAmbiguous
func (r *IDResolver) Resolve(ctx context.Context, token string) (string, error) {
	input := strings.TrimSpace(token)
	if input == "" {
		return "", &ResolveError{Token: token, Err: ErrNotFound}
	}

	ok, err := r.Exists(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to look up %q: %w", input, err)
	}
	if ok {
		return input, nil
	}

	prefixWithHyphen := ""
	if r.Prefix != "" {
		prefixWithHyphen = r.Prefix + "-"
	}

	fragment := input
	if prefixWithHyphen != "" {
		if strings.HasPrefix(input, prefixWithHyphen) {
			fragment = strings.TrimPrefix(input, prefixWithHyphen)
		} else if !looksLikePrefixedID(input) {
			ok, err := r.Exists(ctx, prefixWithHyphen+input)
			if err != nil {
				return "", fmt.Errorf("failed to look up %q: %w", prefixWithHyphen+input, err)
			}
			if ok {
				return prefixWithHyphen + input, nil
			}
		}
	}
	fragment = strings.ToLower(fragment)

	found, err := r.FindByHash(ctx, fragment)
	if err != nil {
		return "", fmt.Errorf("failed to search issues by hash %q: %w", fragment, err)
	}
	matches := dedupeSorted(found)

	switch len(matches) {
	case 0:
		return "", &ResolveError{Token: input, Err: ErrNotFound}
	case 1:
		return matches[0], nil
	default:
		return "", &ResolveError{Token: input, Matches: matches, Err: ErrAmbiguous}
	}
}

// ResolveAll resolves every token in order. The first failure aborts the
// batch and no partial result is returned.
func (r *IDResolver) ResolveAll(ctx context.Context, tokens []string) ([]string, error) {
	resolved := make([]string, 0, len(tokens))
	for _, token := range tokens {
		fullID, err := r.Resolve(ctx, token)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, fullID)
	}
	return resolved, nil
}

func dedupeSorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// looksLikePrefixedID checks if input appears to already have a prefix.
// A prefixed ID has the format "prefix-hash" where prefix is 1-8 lowercase
// letters/numbers and hash is alphanumeric.
// Examples: "aap-4ar", "wb-a3f8e9", "infra-0k2"
func looksLikePrefixedID(input string) bool {
	idx := strings.Index(input, "-")
	if idx <= 0 || idx > 8 {
		return false
	}

	prefix := input[:idx]
	suffix := input[idx+1:]

	for _, c := range prefix {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
			return false
		}
	}

	if len(suffix) == 0 {
		return false
	}
	first := rune(suffix[0])
	return (first >= 'a' && first <= 'z') || (first >= '0' && first <= '9')
}
