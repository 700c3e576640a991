package openrouter

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/ridwanfathin/receipt-sync-service/internal/domain"
)

var (
	codeFenceRegex  = regexp.MustCompile("```(?:json)?\\s*")
	jsonObjectRegex = regexp.MustCompile(`\{[^{}]*\}`)
	nonDigitRegex   = regexp.MustCompile(`[^0-9]`)
	fieldRegexes    = map[string]*regexp.Regexp{
		"date":    regexp.MustCompile(`"date"\s*:\s*"([^"]*)"`),
		"company": regexp.MustCompile(`"company"\s*:\s*"([^"]*)"`),
		"item":    regexp.MustCompile(`"item"\s*:\s*"([^"]*)"`),
		"price":   regexp.MustCompile(`"price"\s*:\s*"?([0-9][0-9,.]*)`),
	}
)

// extractedReceipt is the loose shape the model answers with
type extractedReceipt struct {
	Date    string `json:"date"`
	Company string `json:"company"`
	Item    string `json:"item"`
	Price   any    `json:"price"`
}

// parseChatResponse pulls the receipt JSON out of a chat completion response
func parseChatResponse(respBody []byte) (*domain.ReceiptInput, error) {
	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, &OpenRouterError{
			Op:  "parse_response_json",
			Err: fmt.Errorf("failed to unmarshal response: %w", err),
		}
	}

	if len(response.Choices) == 0 {
		return nil, &OpenRouterError{
			Op:  "check_response_choices",
			Err: fmt.Errorf("no choices in response"),
		}
	}

	return ParseReceiptContent(response.Choices[0].Message.Content)
}

// ParseReceiptContent parses the model's message content into receipt input.
// The content is tried as JSON first, then the first JSON object in it, then field by field.
func ParseReceiptContent(content string) (*domain.ReceiptInput, error) {
	var extracted extractedReceipt

	err := json.Unmarshal([]byte(strings.TrimSpace(content)), &extracted)
	if err == nil {
		return extracted.toInput(), nil
	}

	log.Printf("Failed to parse response as JSON directly: %v", err)
	cleaned := codeFenceRegex.ReplaceAllString(content, "")
	if match := jsonObjectRegex.FindString(cleaned); match != "" {
		if err := json.Unmarshal([]byte(match), &extracted); err == nil {
			return extracted.toInput(), nil
		}
	}

	log.Printf("Failed to extract valid JSON, attempting to extract individual fields with regex")
	found := false
	values := map[string]string{}
	for field, re := range fieldRegexes {
		if m := re.FindStringSubmatch(cleaned); len(m) > 1 {
			values[field] = m[1]
			found = true
		}
	}
	if !found {
		return nil, &OpenRouterError{
			Op:  "extract_json_with_regex",
			Err: fmt.Errorf("failed to extract receipt data from model response"),
		}
	}

	extracted = extractedReceipt{
		Date:    values["date"],
		Company: values["company"],
		Item:    values["item"],
		Price:   values["price"],
	}
	return extracted.toInput(), nil
}

func (e extractedReceipt) toInput() *domain.ReceiptInput {
	input := &domain.ReceiptInput{
		Date:    e.Date,
		Company: e.Company,
		Item:    e.Item,
		Price:   normalizePrice(e.Price),
	}
	input.Sanitize()
	return input
}

// normalizePrice accepts numbers and strings such as "1,500円"; the fractional part is dropped
func normalizePrice(v any) domain.Price {
	switch p := v.(type) {
	case float64:
		if p < 0 {
			return 0
		}
		return domain.Price(int64(p))
	case string:
		if i := strings.IndexAny(p, "."); i >= 0 {
			p = p[:i]
		}
		digits := nonDigitRegex.ReplaceAllString(p, "")
		if digits == "" {
			return 0
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0
		}
		return domain.Price(n)
	default:
		return 0
	}
}
