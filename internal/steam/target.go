package steam

import (
	"net/url"
	"strings"

	"github.com/alvmarrod/steam-weaver/internal/model"
)

// Target is a parsed seed input: either a numeric id or a vanity name
type Target struct {
	ID     model.ID
	Vanity string
}

// ParseTarget accepts a SteamID64, a community profile URL
// (/profiles/<id> or /id/<vanity>) or a bare vanity name
func ParseTarget(input string) (Target, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Target{}, &InputError{Target: input, Reason: "empty target"}
	}

	if isDigits(s) {
		id, err := model.ParseID(s)
		if err != nil {
			return Target{}, &InputError{Target: input, Reason: "identifier out of range"}
		}
		return Target{ID: id}, nil
	}

	if !strings.Contains(s, "/") {
		return Target{Vanity: s}, nil
	}

	// Handle scheme-less URLs
	if !strings.Contains(s, "://") {
		s = "https://" + strings.TrimPrefix(s, "//")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return Target{}, &InputError{Target: input, Reason: "malformed URL"}
	}

	parts := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return Target{}, &InputError{Target: input, Reason: "URL has no profile path"}
	}

	switch strings.ToLower(parts[0]) {
	case "profiles":
		if !isDigits(parts[1]) {
			return Target{}, &InputError{Target: input, Reason: "profile URL without numeric id"}
		}
		id, err := model.ParseID(parts[1])
		if err != nil {
			return Target{}, &InputError{Target: input, Reason: "identifier out of range"}
		}
		return Target{ID: id}, nil
	case "id":
		return Target{Vanity: parts[1]}, nil
	default:
		return Target{}, &InputError{Target: input, Reason: "unrecognised profile URL"}
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
