package utils

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"tutorhub/apperrors"

	_ "golang.org/x/image/webp"
)

// MaxImageBytes bounds decoded profile and admin images
const MaxImageBytes = 2 << 20

var imageFormats = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// ValidateImageDataURI accepts a base64 data URI whose payload decodes as
// the declared image format
func ValidateImageDataURI(uri string) *apperrors.AppError {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return apperrors.NewValidationError("Image must be a data URI")
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return apperrors.NewValidationError("Image data URI is missing its payload")
	}

	mediaType, encoding, _ := strings.Cut(meta, ";")
	format, known := imageFormats[strings.ToLower(mediaType)]
	if !known {
		return apperrors.NewValidationError("Unsupported image type").WithDetails("type", mediaType)
	}
	if encoding != "base64" {
		return apperrors.NewValidationError("Image data URI must be base64 encoded")
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes {
		return apperrors.NewValidationError("Image is too large")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return apperrors.NewValidationError("Image payload is not valid base64")
	}

	_, decoded, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return apperrors.NewValidationError("Image could not be decoded").WithInternal(err)
	}
	if decoded != format {
		return apperrors.NewValidationError("Image content does not match its declared type").
			WithDetails("declared", format).
			WithDetails("actual", decoded)
	}
	return nil
}
