package utils

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"tutorhub/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{
			name:    "Valid id",
			id:      "amina_01-x",
			wantErr: false,
		},
		{
			name:    "Too short",
			id:      "ab",
			wantErr: true,
		},
		{
			name:    "Too long",
			id:      "this_id_is_definitely_way_too_long_to_be_valid",
			wantErr: true,
		},
		{
			name:    "Invalid characters",
			id:      "amina@home",
			wantErr: true,
		},
		{
			name:    "Space not allowed",
			id:      "amina k",
			wantErr: true,
		},
		{
			name:    "HTML tags",
			id:      "<script>alert(1)</script>",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.id)
			if tt.wantErr {
				assert.NotNil(t, err)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.Nil(t, ValidateName("Amina Khatun"))
	assert.NotNil(t, ValidateName("   "))
	assert.NotNil(t, ValidateName(strings.Repeat("a", 81)))
}

func TestValidateEmail(t *testing.T) {
	assert.Nil(t, ValidateEmail(""))
	assert.Nil(t, ValidateEmail("amina@example.com"))
	assert.NotNil(t, ValidateEmail("not-an-email"))
	assert.NotNil(t, ValidateEmail("Amina <amina@example.com>"))
}

func TestValidateMessageText(t *testing.T) {
	err := ValidateMessageText("  \n ")
	require.NotNil(t, err)
	assert.Equal(t, apperrors.ErrCodeMessageEmpty, err.Code)

	assert.Nil(t, ValidateMessageText("need help"))
	assert.NotNil(t, ValidateMessageText(strings.Repeat("x", 4001)))
}

func TestCheckPassword(t *testing.T) {
	assert.True(t, CheckPassword("secret", "secret"))
	assert.False(t, CheckPassword("secret", "Secret"))

	hashed, err := HashPassword("secret")
	require.Nil(t, err)
	assert.True(t, IsHashed(hashed))
	assert.True(t, CheckPassword(hashed, "secret"))
	assert.False(t, CheckPassword(hashed, "wrong"))
	assert.False(t, CheckPassword(hashed, hashed))
}

func TestValidatePassword(t *testing.T) {
	assert.NotNil(t, ValidatePassword(""))
	assert.Nil(t, ValidatePassword("x"))
	assert.NotNil(t, ValidatePassword(strings.Repeat("x", 73)))
}

func pngDataURI(t *testing.T, mediaType string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestValidateImageDataURI(t *testing.T) {
	assert.Nil(t, ValidateImageDataURI(pngDataURI(t, "image/png")))

	tests := []struct {
		name string
		uri  string
	}{
		{"not a data uri", "https://example.com/a.png"},
		{"no payload", "data:image/png;base64"},
		{"unsupported type", "data:image/svg+xml;base64,PHN2Zz4="},
		{"not base64", "data:image/png,rawbytes"},
		{"bad base64", "data:image/png;base64,!!!"},
		{"not an image", "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"declared type mismatch", pngDataURI(t, "image/jpeg")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, ValidateImageDataURI(tt.uri))
		})
	}
}
