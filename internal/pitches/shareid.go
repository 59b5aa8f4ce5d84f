package pitches

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxSlugLength     = 48
	shareSuffixLength = 8
	fallbackSlug      = "pitch"
)

// IDProvider issues internal identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// randomShareSuffix returns eight hex characters from a random UUID.
func randomShareSuffix() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(value.String(), "-", "")[:shareSuffixLength], nil
}

// mintShareID builds the public share id: the title slug plus a random suffix.
func mintShareID(title string, suffix func() (string, error)) (string, error) {
	random, err := suffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", slugify(title), random), nil
}

// slugify lowercases ASCII letters and digits and joins the runs with single dashes.
func slugify(title string) string {
	var builder strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(title) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingDash = builder.Len() > 0
			continue
		}
		if pendingDash {
			if builder.Len()+1 >= maxSlugLength {
				break
			}
			builder.WriteByte('-')
			pendingDash = false
		}
		if builder.Len() >= maxSlugLength {
			break
		}
		builder.WriteRune(r)
	}
	if builder.Len() == 0 {
		return fallbackSlug
	}
	return builder.String()
}
