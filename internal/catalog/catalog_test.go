package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tiles := c.Tiles()
	require.Len(t, tiles, 8)

	names := make([]string, len(tiles))
	for i, tile := range tiles {
		names[i] = tile.Name
	}
	assert.Equal(t, []string{
		"Physiotherapy",
		"Occupational Therapy",
		"Dietetics",
		"Speech Pathology",
		"Falls Prevention",
		"Home Safety Audit",
		"Telehealth How-To",
		"Contact Us",
	}, names)

	physio, ok := c.Category("physiotherapy")
	require.True(t, ok)
	assert.Len(t, physio.Videos, 5)
	assert.Equal(t, "#4b7d74", tiles[0].Color)

	contact, ok := c.Category("contact-us")
	require.True(t, ok)
	assert.Equal(t, KindContact, contact.Kind)
	require.Len(t, c.Contact, 3)
	assert.Equal(t, "info@simplifyhealth.net.au", c.Contact[0].Value)
	assert.Equal(t, "+61 9202 6800", c.Contact[1].Value)
	assert.Equal(t, "PO Box 1118\nOsborne Park\nWA 6017", c.Contact[2].Value)

	_, ok = c.Category("nope")
	assert.False(t, ok)
}

func TestUseWhiteText(t *testing.T) {
	tests := []struct {
		name  string
		color Color
		want  bool
	}{
		{name: "physiotherapy teal", color: Color{75, 125, 116}, want: true},
		{name: "falls prevention beige", color: Color{236, 223, 205}, want: false},
		{name: "telehealth orange", color: Color{253, 159, 40}, want: false},
		{name: "contact navy", color: Color{11, 38, 53}, want: true},
		{name: "just below threshold", color: Color{203, 0, 0}, want: true},
		{name: "at threshold", color: Color{204, 0, 0}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.color.UseWhiteText(), "brightness %.3f", tt.color.Brightness())
		})
	}
}

func TestValidate(t *testing.T) {
	video := Video{Title: "v", URL: "https://example.com/v.mp4", ThumbnailURL: "https://example.com/t.jpg"}

	tests := []struct {
		name    string
		catalog Catalog
		wantErr string
	}{
		{
			name:    "no categories",
			catalog: Catalog{},
			wantErr: "at least one category",
		},
		{
			name: "duplicate slug",
			catalog: Catalog{Categories: []Category{
				{Slug: "a", Name: "A", Kind: KindVideos},
				{Slug: "a", Name: "A2", Kind: KindVideos},
			}},
			wantErr: "duplicate slug",
		},
		{
			name: "bad kind",
			catalog: Catalog{Categories: []Category{
				{Slug: "a", Name: "A", Kind: "podcast"},
			}},
			wantErr: "kind must be one of",
		},
		{
			name: "color out of range",
			catalog: Catalog{Categories: []Category{
				{Slug: "a", Name: "A", Kind: KindVideos, Color: Color{Red: 300}},
			}},
			wantErr: "out of range",
		},
		{
			name: "non-http video url",
			catalog: Catalog{Categories: []Category{
				{Slug: "a", Name: "A", Kind: KindVideos, Videos: []Video{{Title: "v", URL: "ftp://x/v", ThumbnailURL: video.ThumbnailURL}}},
			}},
			wantErr: "scheme must be http or https",
		},
		{
			name: "contact without channels",
			catalog: Catalog{Categories: []Category{
				{Slug: "contact", Name: "Contact", Kind: KindContact},
			}},
			wantErr: "no contact channels",
		},
		{
			name: "valid",
			catalog: Catalog{Categories: []Category{
				{Slug: "a", Name: "A", Kind: KindVideos, Videos: []Video{video}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.catalog.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
title: Clinic
categories:
  - slug: rehab
    name: Rehab
    icon: figure.walk
    color: {red: 10, green: 20, blue: 30}
    kind: videos
`), 0600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Clinic", c.Title)
	require.Len(t, c.Tiles(), 1)
	assert.True(t, c.Tiles()[0].WhiteText)

	c, err = Load("")
	require.NoError(t, err)
	assert.Len(t, c.Categories, 8)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
