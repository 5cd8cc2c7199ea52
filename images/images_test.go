package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

func testHandler() *Handler {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewHandler(log)
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestEncodeFromURLSmallImagePassthrough(t *testing.T) {
	data := pngBytes(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	encoded, err := testHandler().EncodeFromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("EncodeFromURL: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("result is not base64: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("small image must pass through unmodified")
	}
}

func TestEncodeFromURLResizesOversizedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes(t, 2100, 100))
	}))
	defer srv.Close()

	encoded, err := testHandler().EncodeFromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("EncodeFromURL: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("result is not base64: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(decoded))
	if err != nil {
		t.Fatalf("decode resized image: %v", err)
	}
	if img.Bounds().Dx() != maxWidth {
		t.Fatalf("resized width = %d, want %d", img.Bounds().Dx(), maxWidth)
	}
}

func TestEncodeFromURLUndecodablePassthrough(t *testing.T) {
	raw := []byte("not an image at all")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(raw)
	}))
	defer srv.Close()

	encoded, err := testHandler().EncodeFromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("EncodeFromURL: %v", err)
	}
	decoded, _ := base64.StdEncoding.DecodeString(encoded)
	if !bytes.Equal(decoded, raw) {
		t.Fatalf("undecodable payload must pass through untouched")
	}
}

func TestEncodeFromURLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := testHandler()
	if _, err := h.EncodeFromURL(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected an error for HTTP 404")
	}
	if _, err := h.EncodeFromURL(context.Background(), ""); err == nil {
		t.Fatalf("expected an error for an empty url")
	}
}
