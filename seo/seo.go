// Package seo is the optional descriptive-text enrichment capability. When
// no API key is configured the capability is absent and products sync
// without generated descriptions.
package seo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logrus.Logger
}

// NewClient returns nil when apiKey is empty; callers treat a nil client as
// "capability absent".
func NewClient(apiKey string, log *logrus.Logger) *Client {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ProductDescription generates a Spanish SEO description for a product.
// Any failure returns an error; the caller degrades to no description.
func (c *Client) ProductDescription(ctx context.Context, name, category, brand, taxPercent string) (string, error) {
	if name == "" {
		name = "Producto para mascotas"
	}
	if category == "" {
		category = "producto"
	}

	prompt := fmt.Sprintf(`Escribe una descripción comercial original, atractiva y optimizada para SEO en español (Colombia) para el siguiente producto:

- Nombre: %s
- Categoría: %s
- Marca: %s
- IVA: %s%% (incluido en el precio)

La descripción debe:
- Tener entre 120 y 160 palabras.
- Incluir palabras clave naturales relacionadas con mascotas, la categoría y la marca.
- Ser única (no copiada).
- Ser útil para dueños de mascotas en Colombia.
- No mencionar precios ni promociones.
- Terminar con un llamado a la acción suave.
- No incluir HTML, solo texto plano.`, name, category, brand, taxPercent)

	body, err := json.Marshal(chatRequest{
		Model:       "gpt-3.5-turbo",
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   250,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("seo api error %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("seo api returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
