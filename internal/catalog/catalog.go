// Package catalog holds the fixed, ordered registry of style presets.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dunamismax/styleflow/internal/domain"
)

var presetIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Catalog is immutable once built. The zero value is an empty catalog.
type Catalog struct {
	presets []domain.StylePreset
	index   map[string]int
}

// New validates presets and freezes them in the given order.
func New(presets []domain.StylePreset) (*Catalog, error) {
	if len(presets) == 0 {
		return nil, errors.New("catalog must contain at least one preset")
	}

	c := &Catalog{
		presets: make([]domain.StylePreset, 0, len(presets)),
		index:   make(map[string]int, len(presets)),
	}
	for i, p := range presets {
		p.ID = strings.TrimSpace(p.ID)
		p.Name = strings.TrimSpace(p.Name)
		if !presetIDPattern.MatchString(p.ID) {
			return nil, fmt.Errorf("presets[%d].id %q must be a lowercase hyphenated token", i, p.ID)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("presets[%d].name is required", i)
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, fmt.Errorf("presets[%d].id %q is duplicated", i, p.ID)
		}
		c.index[p.ID] = len(c.presets)
		c.presets = append(c.presets, p)
	}
	return c, nil
}

// Default returns the built-in gallery.
func Default() *Catalog {
	c, err := New(defaultPresets)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// List returns the presets in catalog order. The slice is a copy.
func (c *Catalog) List() []domain.StylePreset {
	out := make([]domain.StylePreset, len(c.presets))
	copy(out, c.presets)
	return out
}

func (c *Catalog) Find(id string) (domain.StylePreset, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.StylePreset{}, false
	}
	return c.presets[i], true
}

func (c *Catalog) Len() int {
	return len(c.presets)
}

var defaultPresets = []domain.StylePreset{
	{
		ID:           "van-gogh",
		Name:         "Van Gogh",
		Description:  "Bold brushstrokes and vibrant swirling patterns inspired by the Dutch post-impressionist master.",
		ThumbnailURL: "https://images.pexels.com/photos/1194420/pexels-photo-1194420.jpeg?auto=compress&cs=tinysrgb&w=400",
		Artist:       "Vincent van Gogh",
		Period:       "Post-Impressionism",
	},
	{
		ID:           "picasso",
		Name:         "Picasso",
		Description:  "Geometric shapes and abstract forms characteristic of cubist revolutionary artwork.",
		ThumbnailURL: "https://images.pexels.com/photos/1143754/pexels-photo-1143754.jpeg?auto=compress&cs=tinysrgb&w=400",
		Artist:       "Pablo Picasso",
		Period:       "Cubism",
	},
	{
		ID:           "monet",
		Name:         "Monet",
		Description:  "Soft, dreamy impressions with delicate light and color techniques from French impressionism.",
		ThumbnailURL: "https://images.pexels.com/photos/1187105/pexels-photo-1187105.jpeg?auto=compress&cs=tinysrgb&w=400",
		Artist:       "Claude Monet",
		Period:       "Impressionism",
	},
	{
		ID:           "abstract",
		Name:         "Abstract",
		Description:  "Bold colors and dynamic compositions creating contemporary non-representational art.",
		ThumbnailURL: "https://images.pexels.com/photos/1183992/pexels-photo-1183992.jpeg?auto=compress&cs=tinysrgb&w=400",
		Artist:       "Various Artists",
		Period:       "Abstract Expressionism",
	},
	{
		ID:           "kandinsky",
		Name:         "Kandinsky",
		Description:  "Spiritual abstractions with geometric forms and vivid color harmonies.",
		ThumbnailURL: "https://images.pexels.com/photos/1266808/pexels-photo-1266808.jpeg?auto=compress&cs=tinysrgb&w=400",
		Artist:       "Wassily Kandinsky",
		Period:       "Abstract Art",
	},
	{
		ID:           "hokusai",
		Name:         "Hokusai",
		Description:  "Traditional Japanese woodblock printing with flowing lines and natural motifs.",
		ThumbnailURL: "https://images.pexels.com/photos/1105666/pexels-photo-1105666.jpeg?auto=compress&cs=tinysrgb&w=400",
		Artist:       "Katsushika Hokusai",
		Period:       "Edo Period",
	},
}
