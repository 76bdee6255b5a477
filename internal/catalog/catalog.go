// Package catalog holds the content a signed-in user browses: category
// tiles, their videos and the contact channels.
package catalog

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// Kind says what a category opens.
type Kind string

const (
	KindVideos  Kind = "videos"
	KindContact Kind = "contact"
)

// Color is an sRGB colour with 0..255 components.
type Color struct {
	Red   int `yaml:"red" json:"red"`
	Green int `yaml:"green" json:"green"`
	Blue  int `yaml:"blue" json:"blue"`
}

// Brightness is the HSB brightness: the largest component scaled to 0..1.
func (c Color) Brightness() float64 {
	return float64(max(c.Red, c.Green, c.Blue)) / 255
}

// UseWhiteText reports whether text on this colour should be white rather
// than dark.
func (c Color) UseWhiteText() bool {
	return c.Brightness() < 0.8
}

// Hex returns the colour as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.Red, c.Green, c.Blue)
}

func (c Color) validate() error {
	for _, v := range []int{c.Red, c.Green, c.Blue} {
		if v < 0 || v > 255 {
			return fmt.Errorf("color component %d out of range 0..255", v)
		}
	}
	return nil
}

// Video is one playable item in a category.
type Video struct {
	Title        string `yaml:"title" json:"title"`
	Description  string `yaml:"description" json:"description"`
	URL          string `yaml:"url" json:"url"`
	ThumbnailURL string `yaml:"thumbnail_url" json:"thumbnail_url"`
}

// Category is a tile on the main screen.
type Category struct {
	Slug   string  `yaml:"slug" json:"slug"`
	Name   string  `yaml:"name" json:"name"`
	Icon   string  `yaml:"icon" json:"icon"`
	Color  Color   `yaml:"color" json:"color"`
	Kind   Kind    `yaml:"kind" json:"kind"`
	Videos []Video `yaml:"videos" json:"videos,omitempty"`
}

// ContactChannel is one way to reach the practice.
type ContactChannel struct {
	Kind        string `yaml:"kind" json:"kind"` // email, phone, post
	Icon        string `yaml:"icon" json:"icon"`
	Title       string `yaml:"title" json:"title"`
	Value       string `yaml:"value" json:"value"`
	Link        string `yaml:"link" json:"link,omitempty"`
	Description string `yaml:"description" json:"description"`
}

// Catalog is the full content set.
type Catalog struct {
	Title      string           `yaml:"title" json:"title"`
	Background Color            `yaml:"background" json:"background"`
	Categories []Category       `yaml:"categories" json:"categories"`
	Contact    []ContactChannel `yaml:"contact" json:"contact"`
}

// Tile is the main-screen projection of a Category.
type Tile struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	WhiteText bool   `json:"white_text"`
	Kind      Kind   `json:"kind"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	c, err := Parse(embedded)
	if err != nil {
		return nil, fmt.Errorf("embedded catalog: %w", err)
	}
	return c, nil
}

// Load reads a catalog file, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML catalog data.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("catalog validation failed: %w", err)
	}
	return &c, nil
}

// Validate checks slugs, kinds, colours and URLs.
func (c *Catalog) Validate() error {
	if err := c.Background.validate(); err != nil {
		return fmt.Errorf("background: %w", err)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}

	seen := make(map[string]bool, len(c.Categories))
	hasContact := false
	for i, cat := range c.Categories {
		if cat.Slug == "" || cat.Name == "" {
			return fmt.Errorf("categories[%d]: slug and name are required", i)
		}
		if seen[cat.Slug] {
			return fmt.Errorf("categories[%d]: duplicate slug %q", i, cat.Slug)
		}
		seen[cat.Slug] = true

		if err := cat.Color.validate(); err != nil {
			return fmt.Errorf("category %q: %w", cat.Slug, err)
		}

		switch cat.Kind {
		case KindVideos:
			for j, v := range cat.Videos {
				if v.Title == "" {
					return fmt.Errorf("category %q videos[%d]: title is required", cat.Slug, j)
				}
				if err := checkURL(v.URL); err != nil {
					return fmt.Errorf("category %q videos[%d] url: %w", cat.Slug, j, err)
				}
				if err := checkURL(v.ThumbnailURL); err != nil {
					return fmt.Errorf("category %q videos[%d] thumbnail_url: %w", cat.Slug, j, err)
				}
			}
		case KindContact:
			if len(cat.Videos) > 0 {
				return fmt.Errorf("category %q: contact categories have no videos", cat.Slug)
			}
			hasContact = true
		default:
			return fmt.Errorf("category %q: kind must be one of: videos, contact", cat.Slug)
		}
	}

	if hasContact && len(c.Contact) == 0 {
		return fmt.Errorf("contact category present but no contact channels defined")
	}
	for i, ch := range c.Contact {
		if ch.Title == "" || ch.Value == "" {
			return fmt.Errorf("contact[%d]: title and value are required", i)
		}
	}

	return nil
}

// Tiles returns the main-screen tiles in catalog order.
func (c *Catalog) Tiles() []Tile {
	tiles := make([]Tile, 0, len(c.Categories))
	for _, cat := range c.Categories {
		tiles = append(tiles, Tile{
			Slug:      cat.Slug,
			Name:      cat.Name,
			Icon:      cat.Icon,
			Color:     cat.Color.Hex(),
			WhiteText: cat.Color.UseWhiteText(),
			Kind:      cat.Kind,
		})
	}
	return tiles
}

// Category looks a category up by slug.
func (c *Catalog) Category(slug string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.Slug == slug {
			return cat, true
		}
	}
	return Category{}, false
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
