package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

// receiptPrompt asks for date, company, item and a whole-yen price as JSON
const receiptPrompt = `以下画像はレシートです。日付(YYYY-MM-DD)、会社名、品名、価格(JPY整数)をJSONで返してください。例: {"date":"2025-06-20","company":"FamilyMart","item":"Coffee","price":"150"}`

type imageURL struct {
	URL string `json:"url"`
}

type content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type message struct {
	Role    string    `json:"role"`
	Content []content `json:"content"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Messages  []message `json:"messages"`
}

// ExtractReceiptData sends the receipt image to the vision model and returns the suggested fields
func (c *Client) ExtractReceiptData(ctx context.Context, imageData []byte, mimeType string) (*domain.ReceiptInput, error) {
	if c.apiKey == "" {
		return nil, &OpenRouterError{
			Op:  "validate_configuration",
			Err: fmt.Errorf("vision API key is not configured. Please set VISION_API_KEY environment variable"),
		}
	}

	if len(imageData) == 0 {
		return nil, &OpenRouterError{Op: "validate_image", Err: fmt.Errorf("image is empty")}
	}

	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(imageData)

	requestPayload := chatRequest{
		Model:     c.modelID,
		MaxTokens: c.maxTokens,
		Messages: []message{
			{
				Role: "user",
				Content: []content{
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
					{Type: "text", Text: receiptPrompt},
				},
			},
		},
	}

	requestData, err := json.Marshal(requestPayload)
	if err != nil {
		return nil, &OpenRouterError{
			Op:  "marshal_request",
			Err: fmt.Errorf("failed to marshal request payload: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(requestData))
	if err != nil {
		return nil, &OpenRouterError{
			Op:  "create_extract_request",
			Err: fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &OpenRouterError{
			Op:  "send_extract_request",
			Err: fmt.Errorf("failed to send request: %w", err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &OpenRouterError{
			Op:  "read_response",
			Err: fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &OpenRouterError{
			Op:  "check_api_response",
			Err: fmt.Errorf("API error: %s - %s", resp.Status, string(respBody)),
		}
	}

	return parseChatResponse(respBody)
}
