// Package images implements the product-image capability: download a remote
// image, normalize it, and return it base64-encoded for the storefront
// attachment payload. Failures degrade to "no image"; they never abort the
// item being synced.
package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

const (
	// Binary downloads get a tighter timeout than API calls so a stalled
	// CDN cannot hang a run.
	downloadTimeout = 10 * time.Second

	// Images wider than this are resized before upload.
	maxWidth = 2048
)

type Handler struct {
	http *http.Client
	log  *logrus.Logger
}

func NewHandler(log *logrus.Logger) *Handler {
	return &Handler{
		http: &http.Client{Timeout: downloadTimeout},
		log:  log,
	}
}

// EncodeFromURL downloads the image and returns it base64-encoded. Oversized
// images are resized and re-encoded as JPEG; images Go cannot decode are
// passed through untouched.
func (h *Handler) EncodeFromURL(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("empty image url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(h.normalize(data)), nil
}

func (h *Handler) normalize(data []byte) []byte {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		// Unknown format; the storefront may still accept it as-is.
		return data
	}
	if img.Bounds().Dx() <= maxWidth {
		return data
	}

	resized := imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG); err != nil {
		h.log.WithFields(logrus.Fields{"module": "images"}).Error("image re-encode failed: " + err.Error())
		return data
	}
	return buf.Bytes()
}
