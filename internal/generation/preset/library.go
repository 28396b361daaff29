// Package preset implements generation.Producer without a model: it picks a
// bundled line-art image for the prompt (or loads the uploaded reference),
// fits it to the requested aspect ratio and renders the outline and colored
// variants with image filters.
package preset

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/disintegration/imaging"
	"github.com/phrazzld/inkwell-api/internal/generation"
)

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Library is the set of preset images in a directory.
type Library struct {
	dir   string
	names []string
	words [][]string
}

// LoadLibrary scans dir for PNG and JPEG files. A missing or empty directory
// yields an empty library, which renders synthesized sources instead.
func LoadLibrary(dir string) (*Library, error) {
	lib := &Library{dir: dir}
	if dir == "" {
		return lib, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return lib, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preset directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		lib.names = append(lib.names, e.Name())
	}
	sort.Strings(lib.names)
	for _, name := range lib.names {
		lib.words = append(lib.words, words(strings.TrimSuffix(name, filepath.Ext(name))))
	}
	return lib, nil
}

// Len returns the number of presets.
func (l *Library) Len() int {
	return len(l.names)
}

// Choose picks the preset for a prompt: the name sharing the most words with
// the prompt, or a stable hash of the prompt when nothing matches.
func (l *Library) Choose(prompt string) (string, error) {
	if len(l.names) == 0 {
		return "", generation.ErrNoSource
	}

	promptWords := make(map[string]bool)
	for _, w := range words(prompt) {
		promptWords[w] = true
	}

	best, bestScore := -1, 0
	for i, nameWords := range l.words {
		score := 0
		for _, w := range nameWords {
			if len(w) >= 3 && promptWords[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return l.names[best], nil
	}
	return l.names[promptHash(prompt)%uint32(len(l.names))], nil
}

// Open decodes the named preset.
func (l *Library) Open(name string) (image.Image, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("%w: invalid preset name %q", generation.ErrNoSource, name)
	}
	img, err := imaging.Open(filepath.Join(l.dir, name), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: open preset %s: %v", generation.ErrGenerationFailed, name, err)
	}
	return img, nil
}

// Synthesize draws a deterministic pattern of rings for prompts when the
// library is empty.
func Synthesize(prompt string, width, height int) image.Image {
	seed := promptHash(prompt)
	img := imaging.New(width, height, color.White)

	cx := width/4 + int(seed%uint32(width/2+1))
	cy := height/4 + int((seed>>8)%uint32(height/2+1))
	spacing := 24 + int((seed>>16)%24)
	ink := color.NRGBA{
		R: uint8(seed >> 24),
		G: uint8(seed >> 16),
		B: uint8(seed >> 8),
		A: 255,
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := x-cx, y-cy
			r := int(math.Sqrt(float64(dx*dx + dy*dy)))
			if r%spacing < 3 {
				img.SetNRGBA(x, y, ink)
			}
		}
	}
	return img
}

func promptHash(prompt string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(prompt))))
	return h.Sum32()
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
