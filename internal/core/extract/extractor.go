package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/temiloluwa-oss/arkiva/internal/core"
)

// DocconvExtractor pulls text out of office/text/HTML/PDF blobs. A PDF or
// image whose text layer comes back shorter than minTextLen is handed to the
// OCR fallback instead: that threshold is the deciding signal for an expensive
// path, so it is a constructor parameter rather than a constant.
type DocconvExtractor struct {
	minTextLen int
}

var _ core.TextExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(minTextLen int) *DocconvExtractor {
	if minTextLen <= 0 {
		minTextLen = 64
	}
	return &DocconvExtractor{minTextLen: minTextLen}
}

func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	contentType = normalizeContentType(contentType)

	// Raster images have no text layer to try; straight to OCR.
	if isImage(contentType) {
		return "", core.ErrNeedsOCR
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		if isScannable(contentType) {
			// A PDF that docconv cannot parse is usually a scan.
			return "", core.ErrNeedsOCR
		}
		return "", fmt.Errorf("convert %s: %w", contentType, err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	text := strings.TrimSpace(res.Body)
	if isScannable(contentType) && len([]rune(text)) < e.minTextLen {
		return "", core.ErrNeedsOCR
	}
	return text, nil
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(strings.ToLower(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" {
		return "text/plain"
	}
	return ct
}

func isImage(ct string) bool {
	return strings.HasPrefix(ct, "image/")
}

// isScannable reports content types that may carry no extractable text layer.
func isScannable(ct string) bool {
	return ct == "application/pdf" || isImage(ct)
}
