package describe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	maxTokens      = 256
	requestTimeout = 30 * time.Second
)

var ErrNotConfigured = errors.New("text generation not configured")

// Config holds text generation settings.
type Config struct {
	APIKey  string
	Model   string
	// BaseURL is the API root; requests go to BaseURL + "v1/messages".
	BaseURL string
}

// Fields are the listing attributes a description is drafted from.
type Fields struct {
	Brand           string `json:"brand"`
	Model           string `json:"model"`
	ReferenceNumber string `json:"reference_number"`
	Year            string `json:"year"`
	Condition       string `json:"condition"`
	DealerNotes     string `json:"dealer_notes"`
}

// Service drafts listing descriptions with the Anthropic Messages API.
type Service struct {
	config Config
	client anthropic.Client
	logger *slog.Logger
}

func NewService(cfg Config, logger *slog.Logger) *Service {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/"
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	return &Service{
		config: cfg,
		client: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithRequestTimeout(requestTimeout),
			option.WithMaxRetries(0),
		),
		logger: logger,
	}
}

// Configured returns true if an API key is set.
func (s *Service) Configured() bool {
	return s.config.APIKey != ""
}

// Prompt renders the instruction sent to the model. Optional fields are
// omitted when blank.
func Prompt(f Fields) string {
	var b strings.Builder
	b.WriteString("Write a compelling, professional 2-3 sentence description for a luxury watch listing on a B2B dealer marketplace. ")
	b.WriteString("Keep it concise and factual. Do not use flowery language or exclamation marks. ")
	b.WriteString("Focus on what matters to dealers: authenticity, condition details, and value.\n\n")
	b.WriteString("Watch details:\n")
	fmt.Fprintf(&b, "- Brand: %s\n", f.Brand)
	fmt.Fprintf(&b, "- Model: %s\n", f.Model)
	if f.ReferenceNumber != "" {
		fmt.Fprintf(&b, "- Reference: %s\n", f.ReferenceNumber)
	}
	if f.Year != "" {
		fmt.Fprintf(&b, "- Year: %s\n", f.Year)
	}
	fmt.Fprintf(&b, "- Condition: %s\n", f.Condition)
	if f.DealerNotes != "" {
		fmt.Fprintf(&b, "- Dealer notes: %s\n", f.DealerNotes)
	}
	b.WriteString("\nWrite only the description, nothing else.")
	return b.String()
}

// Generate asks the model for a description. An empty reply is not an error.
func (s *Service) Generate(ctx context.Context, f Fields) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}

	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(Prompt(f))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("messages API error: status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("messages API request: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", nil
}

// Draft is the best-effort form of Generate: any failure or empty reply
// reports ok=false and callers keep the current description.
func (s *Service) Draft(ctx context.Context, f Fields) (string, bool) {
	text, err := s.Generate(ctx, f)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			s.logger.Warn("draft description", "error", err)
		}
		return "", false
	}
	if text == "" {
		return "", false
	}
	return text, true
}
