package corpus

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"website.md":         {Data: []byte("# Website Agent\nWebsite Agent embeds on your e-commerce site.  \r\n")},
		"agents/call.txt":    {Data: []byte("Call Agent answers the phone.")},
		"pages/pricing.html": {Data: []byte(`<html><head><title>Pricing</title></head><body><nav><li>Menu</li></nav><main><h1>Plans</h1><p>Starter plan</p><ul><li>Unlimited chats</li></ul></main></body></html>`)},
		"image.png":          {Data: []byte{0x89, 0x50}},
		".git/config":        {Data: []byte("ignored")},
		".hidden/secret.md":  {Data: []byte("ignored")},
	}

	docs, err := LoadFS(fsys)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "agents/call.txt", docs[0].SourceID)
	assert.Equal(t, "Call Agent answers the phone.", docs[0].Title)

	assert.Equal(t, "pages/pricing.html", docs[1].SourceID)
	assert.Equal(t, "Pricing", docs[1].Title)
	assert.Equal(t, "Plans\nStarter plan\nUnlimited chats", docs[1].Text)
	assert.NotContains(t, docs[1].Text, "Menu")

	assert.Equal(t, "website.md", docs[2].SourceID)
	assert.Equal(t, "Website Agent", docs[2].Title)
	assert.Equal(t, "# Website Agent\nWebsite Agent embeds on your e-commerce site.\n", docs[2].Text)
}

func TestLoad(t *testing.T) {
	t.Run("Reads a directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("hello"), 0o644))

		docs, err := Load(dir)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "a.md", docs[0].SourceID)
	})

	t.Run("Missing directory fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("Empty file gives a titled empty document", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "blank.txt"), nil, 0o644))

		docs, err := Load(dir)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "blank", docs[0].Title)
		assert.Empty(t, docs[0].Text)
	})
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"The Website Agent embeds on your site", "Website Agent"},
		{"Our SOCIAL MEDIA AGENT replies to DMs", "Social Media Agent"},
		{"Try us in the GPT Store", "GPT Store"},
		{"Works inside ChatGPT", "GPT Store"},
		{"Sell more electronics", "Electronics & Tech"},
		{"Fashion brands love it", "Fashion & Apparel"},
		{"Become a partner", "Agencies & Partners"},
		{"Website Agent for fashion stores", "Website Agent"},
		{"Nothing relevant here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.text))
		})
	}
}
