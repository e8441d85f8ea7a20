package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		filename string
		want     string
	}{
		{"with prefix", "trademark-images", "logo.png", "trademark-images/abc-logo.png"},
		{"trims slashes", "/imgs/", "logo.png", "imgs/abc-logo.png"},
		{"no prefix", "", "logo.png", "abc-logo.png"},
		{"strips directories", "p", "../../etc/passwd", "p/abc-passwd"},
		{"windows path", "p", `C:\Users\me\logo.jpg`, "p/abc-logo.jpg"},
		{"empty filename", "p", "", "p/abc-image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, objectKey(tt.prefix, "abc", tt.filename))
		})
	}
}

func TestObjectURL(t *testing.T) {
	cfg := Config{Endpoint: "localhost:9000", Bucket: "trademark-images"}
	assert.Equal(t, "http://localhost:9000/trademark-images/p/id-my%20logo.png", objectURL(cfg, "p/id-my logo.png"))

	cfg.UseSSL = true
	assert.Equal(t, "https://localhost:9000/trademark-images/p/id-a.png", objectURL(cfg, "p/id-a.png"))

	cfg.PublicBaseURL = "https://cdn.example.com/"
	assert.Equal(t, "https://cdn.example.com/p/id-a.png", objectURL(cfg, "p/id-a.png"))
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	m, err := New(Config{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "trademark-images", m.cfg.Bucket)
}
