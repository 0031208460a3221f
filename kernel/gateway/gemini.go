package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/perchlabs/wrenbot/kernel/chat"
)

// GeminiConfig configures the Gemini generateContent client.
type GeminiConfig struct {
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiGenerator struct {
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGemini creates a Generator backed by the Gemini HTTP API.
func NewGemini(cfg GeminiConfig) (Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gateway: gemini api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("gateway: gemini model is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &geminiGenerator{
		model:   cfg.Model,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (g *geminiGenerator) Name() string {
	return g.model
}

func (g *geminiGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("gateway: request is nil")
	}

	payload := geminiRequest{
		Contents: toGeminiContents(append(append([]chat.Message(nil), req.History...), req.Prompt)),
		Tools:    toGeminiTools(req.Abilities),
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		payload.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemInstruction}},
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	msg, usage, err := geminiResponseToMessage(out)
	if err != nil {
		return nil, err
	}
	return &Response{
		Message:  msg,
		Usage:    usage,
		Model:    g.model,
		Provider: "gemini",
	}, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Errorf("gateway: gemini status %d", resp.StatusCode)
	}
	return fmt.Errorf("gateway: gemini status %d: %s", resp.StatusCode, text)
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Ability names are slash-namespaced; the Gemini function-name charset is
// not. Names cross the wire with the slash folded to a double underscore.
func toWireName(name string) string {
	return strings.ReplaceAll(name, "/", "__")
}

func fromWireName(name string) string {
	return strings.Replace(name, "__", "/", 1)
}

func toGeminiContents(messages []chat.Message) []geminiContent {
	out := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == chat.RoleModel {
			role = "model"
		}
		parts := make([]geminiPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch {
			case p.ToolCall != nil:
				parts = append(parts, geminiPart{
					FunctionCall: &geminiFunctionCall{
						Name: toWireName(p.ToolCall.Name),
						Args: p.ToolCall.Args,
					},
				})
			case p.ToolResult != nil:
				parts = append(parts, geminiPart{
					FunctionResponse: &geminiFunctionResponse{
						Name:     toWireName(p.ToolResult.Name),
						Response: toResponsePayload(p.ToolResult.Payload),
					},
				})
			case strings.TrimSpace(p.Text) != "":
				parts = append(parts, geminiPart{Text: p.Text})
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, geminiContent{Role: role, Parts: parts})
	}
	return out
}

func toResponsePayload(payload any) map[string]any {
	if asMap, ok := payload.(map[string]any); ok {
		return asMap
	}
	return map[string]any{"result": payload}
}

func toGeminiTools(abilities []Declaration) []geminiTool {
	if len(abilities) == 0 {
		return nil
	}
	declarations := make([]geminiFunctionDecl, 0, len(abilities))
	for _, one := range abilities {
		declarations = append(declarations, geminiFunctionDecl{
			Name:        toWireName(one.Name),
			Description: one.Description,
			Parameters:  one.Parameters,
		})
	}
	return []geminiTool{{FunctionDeclarations: declarations}}
}

func geminiResponseToMessage(out geminiResponse) (chat.Message, Usage, error) {
	if len(out.Candidates) == 0 {
		return chat.Message{}, Usage{}, fmt.Errorf("gateway: empty candidates")
	}
	msg := chat.Message{Role: chat.RoleModel}
	for _, part := range out.Candidates[0].Content.Parts {
		if strings.TrimSpace(part.Text) != "" {
			msg.Parts = append(msg.Parts, chat.Part{Text: part.Text})
		}
		if part.FunctionCall != nil {
			msg.Parts = append(msg.Parts, chat.Part{ToolCall: &chat.ToolCall{
				ID:   "call_" + uuid.NewString(),
				Name: fromWireName(part.FunctionCall.Name),
				Args: part.FunctionCall.Args,
			}})
		}
	}
	usage := Usage{
		PromptTokens:     out.UsageMetadata.PromptTokenCount,
		CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      out.UsageMetadata.TotalTokenCount,
	}
	return msg, usage, nil
}
