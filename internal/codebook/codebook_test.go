package codebook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidCodebook(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "codebook.yml")

	valid := `version: "1"
labels:
  - key: "yes"
    description: "Affirmative"
  - key: "no"
    description: "Negative"
coders:
  - id: "alice"
    name: "Alice"
  - id: "bob"
    name: "Bob"
`
	err := os.WriteFile(path, []byte(valid), 0644)
	require.NoError(t, err)

	cb, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, cb)
	assert.Equal(t, "1", cb.Version)
	assert.Len(t, cb.Labels, 2)
	assert.Len(t, cb.Coders, 2)
	assert.Equal(t, "Affirmative", cb.Labels[0].Description)
	assert.Equal(t, []string{"alice", "bob"}, cb.CoderIDs())
}

func TestLoad_FileNotFound(t *testing.T) {
	cb, err := Load("/nonexistent/codebook.yml")
	assert.Error(t, err)
	assert.Nil(t, cb)
	assert.Contains(t, err.Error(), "failed to read codebook")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "codebook.yml")

	invalid := `version: "1"
labels:
  - this is invalid
    yaml syntax
`
	err := os.WriteFile(path, []byte(invalid), 0644)
	require.NoError(t, err)

	cb, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, cb)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Codebook {
		return &Codebook{
			Version: "1",
			Labels:  []Label{{Key: "yes", Description: "Affirmative"}},
			Coders:  []Coder{{ID: "1", Name: "Coder 1"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Codebook)
		wantErr string
	}{
		{
			name:    "unsupported version",
			mutate:  func(c *Codebook) { c.Version = "2" },
			wantErr: "unsupported version",
		},
		{
			name:    "no labels",
			mutate:  func(c *Codebook) { c.Labels = nil },
			wantErr: "no labels defined",
		},
		{
			name:    "empty label key",
			mutate:  func(c *Codebook) { c.Labels = append(c.Labels, Label{Key: "  "}) },
			wantErr: "key must not be empty",
		},
		{
			name:    "padded label key",
			mutate:  func(c *Codebook) { c.Labels = append(c.Labels, Label{Key: " maybe"}) },
			wantErr: "surrounding whitespace",
		},
		{
			name:    "duplicate label key",
			mutate:  func(c *Codebook) { c.Labels = append(c.Labels, Label{Key: "yes"}) },
			wantErr: "duplicate label key",
		},
		{
			name:    "no coders",
			mutate:  func(c *Codebook) { c.Coders = nil },
			wantErr: "no coders defined",
		},
		{
			name:    "empty coder id",
			mutate:  func(c *Codebook) { c.Coders = append(c.Coders, Coder{ID: ""}) },
			wantErr: "coder id must not be empty",
		},
		{
			name:    "coder id with invalid character",
			mutate:  func(c *Codebook) { c.Coders = append(c.Coders, Coder{ID: "a b"}) },
			wantErr: "invalid character",
		},
		{
			name:    "duplicate coder id",
			mutate:  func(c *Codebook) { c.Coders = append(c.Coders, Coder{ID: "1"}) },
			wantErr: "duplicate coder id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := base()
			tt.mutate(cb)
			err := cb.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	cb := Default()
	require.NotNil(t, cb)
	assert.NoError(t, cb.Validate())
	assert.Len(t, cb.Labels, 10)
	assert.Len(t, cb.Coders, 5)
	assert.True(t, cb.HasLabel("help"))
	assert.True(t, cb.HasLabel("denigrate"))
	assert.False(t, cb.HasLabel("nonsense"))
}

func TestCoderLookup(t *testing.T) {
	cb := Default()

	coder, ok := cb.Coder("3")
	require.True(t, ok)
	assert.Equal(t, "Coder 3", coder.Name)

	_, ok = cb.Coder("99")
	assert.False(t, ok)
}

func TestColumn(t *testing.T) {
	assert.Equal(t, "label_1", Column("1"))
	assert.Equal(t, "label_alice", Column("alice"))
}
