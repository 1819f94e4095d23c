package enrich

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

const (
	chatCompletionsURL = "https://api.openai.com/v1/chat/completions"
	embeddingsURL      = "https://api.openai.com/v1/embeddings"
)

// OpenAIClient talks to the OpenAI HTTP API for enrichment, drafting,
// reply classification and embeddings.
type OpenAIClient struct {
	apiKey         string
	model          string
	embeddingModel string
	httpClient     *http.Client
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(apiKey, model, embeddingModel string, timeout time.Duration) *OpenAIClient {
	if model == "" {
		model = "gpt-4-turbo-preview"
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-3-large"
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:         apiKey,
		model:          model,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// chat performs one chat completion and returns the content and token count.
func (c *OpenAIClient) chat(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, int, error) {
	if c.apiKey == "" {
		return "", 0, fmt.Errorf("OpenAI API key not configured")
	}

	request := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	jsonBody, err := json.Marshal(request)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", chatCompletionsURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", 0, fmt.Errorf("openai throttled the request: %w", domain.ErrRateLimited)
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", 0, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	if response.Error != nil {
		if response.Error.Type == "rate_limit_error" || strings.Contains(response.Error.Message, "rate limit") {
			return "", 0, fmt.Errorf("openai throttled the request: %w", domain.ErrRateLimited)
		}
		return "", 0, fmt.Errorf("API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", 0, fmt.Errorf("no response from OpenAI")
	}

	return response.Choices[0].Message.Content, response.Usage.TotalTokens, nil
}

// Enrich asks the model for title, company, painpoint and relevance score.
func (c *OpenAIClient) Enrich(ctx context.Context, contact *domain.Contact) (*Enrichment, int, error) {
	name := contact.Name
	if name == "" {
		name = "Unknown"
	}
	industry := contact.Industry
	if industry == "" {
		industry = "Unknown"
	}

	prompt := fmt.Sprintf(`Given the following contact information, provide enrichment data in JSON format.

Contact:
- Name: %s
- Email: %s
- Industry: %s

Please provide:
1. title: Their professional title/role
2. company: Their company name (infer from email domain if possible)
3. painpoint: A brief description of potential pain points for their role/industry
4. relevance_score: A score from 0-10 indicating how relevant this contact is for B2B outreach

Return ONLY a valid JSON object with these exact fields. Be specific and avoid generic responses.`, name, contact.Email, industry)

	content, tokens, err := c.chat(ctx, "You are a B2B contact research assistant. Provide specific, actionable insights.", prompt, 0.7, 500)
	if err != nil {
		return nil, 0, err
	}

	var e Enrichment
	if err := json.Unmarshal([]byte(content), &e); err != nil {
		return nil, tokens, fmt.Errorf("unparseable enrichment response: %w", err)
	}
	return &e, tokens, nil
}

// GenerateDraft writes a personalized cold email for a contact. Satisfies
// drafting.Generator.
func (c *OpenAIClient) GenerateDraft(ctx context.Context, contact *domain.Contact, maxWords int) (string, string, int, error) {
	orDefault := func(v string) string {
		if v == "" {
			return "Unknown"
		}
		return v
	}

	prompt := fmt.Sprintf(`Write a professional, personalized cold email for B2B outreach.

Contact Details:
- Name: %s
- Company: %s
- Title: %s
- Industry: %s
- Pain Point: %s

Requirements:
- Keep it under %d words
- Professional but friendly tone
- Personalized based on their role/industry
- Clear value proposition
- Include subject line

Return in format:
SUBJECT: [subject line]
BODY: [email body]`,
		orDefault(contact.Name), orDefault(contact.Company), orDefault(contact.Title),
		orDefault(contact.Industry), orDefault(contact.Painpoint), maxWords)

	content, tokens, err := c.chat(ctx, "You are an expert email copywriter for B2B sales.", prompt, 0.7, 400)
	if err != nil {
		return "", "", 0, err
	}

	subject, body := parseDraftResponse(content)
	return subject, body, tokens, nil
}

// parseDraftResponse splits a SUBJECT:/BODY: response; without the markers
// the whole content becomes the body.
func parseDraftResponse(content string) (string, string) {
	if strings.Contains(content, "SUBJECT:") && strings.Contains(content, "BODY:") {
		parts := strings.SplitN(content, "BODY:", 2)
		subject := strings.TrimSpace(strings.Replace(parts[0], "SUBJECT:", "", 1))
		return subject, strings.TrimSpace(parts[1])
	}
	return "", strings.TrimSpace(content)
}

// ClassifyReply maps a reply body to an intent. Satisfies
// replies.Classifier.
func (c *OpenAIClient) ClassifyReply(ctx context.Context, body string) (domain.ReplyIntent, float64, int, error) {
	excerpt := body
	if len(excerpt) > 500 {
		excerpt = excerpt[:500]
	}

	prompt := fmt.Sprintf(`Classify the intent of this email reply into one of these categories:
- INTERESTED: Positive response, wants to continue conversation
- MAYBE: Noncommittal, possibly interested later
- DECLINE: Not interested, polite rejection
- AUTO_REPLY: Automated out-of-office reply
- UNSUBSCRIBE: Wants to be removed from communications
- UNKNOWN: Unclear or other intent

Reply text:
%s

Respond with ONLY the category name (e.g., "INTERESTED").`, excerpt)

	content, tokens, err := c.chat(ctx, "You are an email intent classifier.", prompt, 0.0, 20)
	if err != nil {
		return domain.IntentUnknown, 0, 0, err
	}

	intent := parseIntent(content)
	confidence := 0.9
	if intent == domain.IntentUnknown {
		confidence = 0.0
	}
	return intent, confidence, tokens, nil
}

func parseIntent(content string) domain.ReplyIntent {
	switch strings.ToUpper(strings.TrimSpace(content)) {
	case "INTERESTED":
		return domain.IntentInterested
	case "MAYBE":
		return domain.IntentMaybe
	case "DECLINE":
		return domain.IntentDecline
	case "AUTO_REPLY", "OUT_OF_OFFICE":
		return domain.IntentAutoReply
	case "UNSUBSCRIBE":
		return domain.IntentUnsubscribe
	default:
		return domain.IntentUnknown
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns an embedding vector for text, packed little-endian for
// opaque storage on the contact.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]byte, int, error) {
	if c.apiKey == "" {
		return nil, 0, fmt.Errorf("OpenAI API key not configured")
	}

	jsonBody, err := json.Marshal(embeddingRequest{Model: c.embeddingModel, Input: []string{text}})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", embeddingsURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, 0, fmt.Errorf("openai throttled the request: %w", domain.ErrRateLimited)
	}

	var response embeddingResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if response.Error != nil {
		return nil, 0, fmt.Errorf("API error: %s", response.Error.Message)
	}
	if len(response.Data) == 0 {
		return nil, 0, fmt.Errorf("no embedding returned")
	}

	return packVector(response.Data[0].Embedding), response.Usage.TotalTokens, nil
}

// packVector encodes a float32 vector as little-endian bytes.
func packVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// UnpackVector decodes a packed embedding back into float32s.
func UnpackVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
