package redcap

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidToken is returned for strings that cannot be REDCap API tokens.
var ErrInvalidToken = errors.New("invalid REDCap API token")

type TokenSource string

const (
	TokenSourceExplicit TokenSource = "explicit"
	TokenSourceEnv      TokenSource = "env:REDCAP_MASTER_TOKEN"
)

// ResolveMasterToken resolves the instructor's master token.
//
// Precedence:
//  1. provided (if non-empty)
//  2. REDCAP_MASTER_TOKEN env var
//
// It never prints the token.
func ResolveMasterToken(provided string) (token string, source TokenSource, err error) {
	if tok := strings.TrimSpace(provided); tok != "" {
		if err := ValidateToken(tok); err != nil {
			return "", "", err
		}
		return tok, TokenSourceExplicit, nil
	}
	if env := strings.TrimSpace(os.Getenv("REDCAP_MASTER_TOKEN")); env != "" {
		if err := ValidateToken(env); err != nil {
			return "", "", err
		}
		return env, TokenSourceEnv, nil
	}
	return "", "", nil
}

// ValidateToken accepts project tokens (32 hex chars) and super tokens (64).
func ValidateToken(tok string) error {
	if len(tok) != 32 && len(tok) != 64 {
		return fmt.Errorf("%w %s: expected 32 or 64 hexadecimal characters", ErrInvalidToken, MaskToken(tok))
	}
	for _, r := range tok {
		isHex := (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')
		if !isHex {
			return fmt.Errorf("%w %s: contains non-hexadecimal characters", ErrInvalidToken, MaskToken(tok))
		}
	}
	return nil
}

// MaskToken keeps the first and last four characters so operators can tell
// tokens apart in logs.
func MaskToken(tok string) string {
	if len(tok) <= 8 {
		return strings.Repeat("*", len(tok))
	}
	return tok[:4] + strings.Repeat("*", len(tok)-8) + tok[len(tok)-4:]
}

// LoadTokensFile reads one token per line. Blank lines and lines starting
// with '#' are skipped; trailing "# comment" text is stripped.
func LoadTokensFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tokens file: %w", err)
	}
	defer f.Close()

	var tokens []string
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Text()
		if before, _, ok := strings.Cut(raw, "#"); ok {
			raw = before
		}
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}
		if err := ValidateToken(tok); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		tokens = append(tokens, tok)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}
	return tokens, nil
}

// DedupeTokens drops repeated tokens, keeping first occurrence order.
func DedupeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
