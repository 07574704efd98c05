package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"repochat/packages/config"
	"repochat/types"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	// ErrMissingAPIKey means GEMINI_API_KEY is not set in the environment.
	ErrMissingAPIKey = errors.New("GEMINI_API_KEY not set in environment")
	// ErrUnauthorized means the configured API key was rejected.
	ErrUnauthorized = errors.New("LLM API key rejected")
	// ErrQuota means the LLM API quota is exhausted.
	ErrQuota = errors.New("LLM API quota exhausted")
	// ErrContextTooLarge means the prompt exceeds the model's context window.
	ErrContextTooLarge = errors.New("context exceeds the model's context window")
)

// Service sends chat questions, together with the aggregated repository
// context and the running conversation, to the Gemini API.
type Service struct {
	apiKey string
	cfg    config.AIConfig
}

// NewService constructs the LLM query service. A missing API key is fatal
// for chat but must not prevent repository browsing, so the caller decides
// how to surface ErrMissingAPIKey.
func NewService(cfg config.AIConfig) (*Service, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Service{apiKey: apiKey, cfg: cfg}, nil
}

// Ask submits the question with the aggregated context and prior turns and
// returns the model's answer verbatim. contextLabel describes where the
// context came from (whole repository or a single file).
func (s *Service) Ask(ctx context.Context, contextText, contextLabel string, history []types.ChatTurn, question string) (string, error) {
	system := buildSystemInstruction(contextLabel, contextText)

	if err := s.checkPromptSize(system, history, question); err != nil {
		return "", err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(s.apiKey))
	if err != nil {
		slog.Error("Failed to create Gemini client", "error", err)
		return "", classifyError(err)
	}
	defer client.Close()

	model := client.GenerativeModel(s.cfg.Model)
	model.SetTemperature(s.cfg.Temperature)
	model.SetTopK(s.cfg.TopK)
	model.SetTopP(s.cfg.TopP)
	model.SetMaxOutputTokens(s.cfg.MaxOutputTokens)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	chat := model.StartChat()
	chat.History = toGenaiHistory(history)

	slog.Info("Sending request to Gemini API",
		"model", s.cfg.Model,
		"contextChars", len(contextText),
		"historyTurns", len(history),
		"questionChars", len(question))

	resp, err := chat.SendMessage(ctx, genai.Text(question))
	if err != nil {
		slog.Error("Failed to generate content", "error", err)
		return "", classifyError(err)
	}

	answer := responseText(resp)
	if answer == "" {
		return "", fmt.Errorf("no content generated")
	}

	slog.Info("Successfully generated answer", "contentLength", len(answer))
	return answer, nil
}

func (s *Service) checkPromptSize(system string, history []types.ChatTurn, question string) error {
	total := len(system) + len(question)
	for _, turn := range history {
		total += len(turn.Text)
	}
	if total > s.cfg.MaxContextChars {
		return fmt.Errorf("%w: prompt is %d characters, limit is %d", ErrContextTooLarge, total, s.cfg.MaxContextChars)
	}
	return nil
}

func buildSystemInstruction(contextLabel, contextText string) string {
	return fmt.Sprintf(`You are an expert AI programming assistant.

Here is %s:

%s

Answer only based on the above code. Be concise, helpful, and provide code samples in markdown if needed.`,
		contextLabel, contextText)
}

func toGenaiHistory(history []types.ChatTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		contents = append(contents, &genai.Content{
			Role:  string(turn.Role),
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	return builder.String()
}

func classifyError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrQuota, apiErr.Message)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
		case http.StatusBadRequest:
			message := strings.ToLower(apiErr.Message)
			if strings.Contains(message, "token") || strings.Contains(message, "too large") {
				return fmt.Errorf("%w: %s", ErrContextTooLarge, apiErr.Message)
			}
		}
		return fmt.Errorf("LLM API error: %w", err)
	}
	return fmt.Errorf("network error talking to LLM: %w", err)
}
