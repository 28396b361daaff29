package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Artifact variant names.
const (
	VariantOutline = "outline"
	VariantColored = "colored"
)

// Artifact validation errors
var (
	ErrEmptyArtifactID  = errors.New("artifact ID cannot be empty")
	ErrMissingVariant   = errors.New("artifact requires outline and colored variants")
	ErrEmptyVariantKey  = errors.New("artifact variant requires a storage key")
	ErrEmptyArtifactRef = errors.New("artifact requires an owner and a task")
)

// ArtifactVariant is one stored rendering of an artifact.
type ArtifactVariant struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Artifact is the immutable output of a completed generation task.
type Artifact struct {
	ID           uuid.UUID         `json:"id"`
	TaskID       uuid.UUID         `json:"task_id"`
	OwnerID      uuid.UUID         `json:"owner_id"`
	Title        string            `json:"title"`
	Tags         []string          `json:"tags"`
	SourcePrompt string            `json:"source_prompt,omitempty"`
	SourceImage  string            `json:"source_image,omitempty"`
	Variants     []ArtifactVariant `json:"variants"`
	IsPublic     bool              `json:"is_public"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Validate checks that the artifact is complete enough to publish.
func (a *Artifact) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyArtifactID
	}
	if a.OwnerID == uuid.Nil || a.TaskID == uuid.Nil {
		return ErrEmptyArtifactRef
	}
	if a.Variant(VariantOutline) == nil || a.Variant(VariantColored) == nil {
		return ErrMissingVariant
	}
	for _, v := range a.Variants {
		if v.Key == "" {
			return ErrEmptyVariantKey
		}
	}
	return nil
}

// Variant returns the named variant or nil.
func (a *Artifact) Variant(name string) *ArtifactVariant {
	for i := range a.Variants {
		if a.Variants[i].Name == name {
			return &a.Variants[i]
		}
	}
	return nil
}

// Keys returns the storage keys of every variant.
func (a *Artifact) Keys() []string {
	keys := make([]string, 0, len(a.Variants))
	for _, v := range a.Variants {
		keys = append(keys, v.Key)
	}
	return keys
}

const (
	maxTitleLength = 60
	maxTags        = 8
	minTagLength   = 3
)

// TitleFromPrompt derives a display title from a prompt or file name.
func TitleFromPrompt(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if title == "" {
		return "Untitled coloring page"
	}
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		runes = []rune(strings.TrimSpace(string(runes[:maxTitleLength])))
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// TagsFromPrompt extracts up to eight distinct lowercase words of at least
// three letters.
func TagsFromPrompt(prompt string) []string {
	words := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	seen := make(map[string]struct{}, len(words))
	tags := make([]string, 0, maxTags)
	for _, w := range words {
		if len([]rune(w)) < minTagLength {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		tags = append(tags, w)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}
