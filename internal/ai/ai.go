package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"walter-bot/internal/config"
	"walter-bot/internal/model"
)

const maxAttempts = 3

// Service turns the day's historical events into Victorian-styled commentary
// for the morning post. On repeated API failure it falls back to a plain
// rendering so the post still goes out.
type Service struct {
	client    *openai.Client
	model     string
	maxTokens int
	log       *slog.Logger
}

func New(cfg config.AIConfig, log *slog.Logger) (*Service, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	return &Service{
		client:    openai.NewClient(key),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		log:       log.With("component", "ai"),
	}, nil
}

var promptStyles = []string{"standard", "pooter", "jerome"}

// DailyCommentary generates the on-this-day post. Retries with exponential
// backoff; after the last attempt the deterministic fallback is returned.
func (s *Service) DailyCommentary(ctx context.Context, events []model.HistoryEvent) string {
	style := promptStyles[rand.Intn(len(promptStyles))]
	prompt := buildPrompt(events, style)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<attempt) * time.Second
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Fallback(events)
			}
		}

		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     s.model,
			MaxTokens: s.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			s.log.Warn("commentary attempt failed", "attempt", attempt+1, "style", style, "error", err)
			continue
		}
		if len(resp.Choices) == 0 {
			s.log.Warn("commentary response empty", "attempt", attempt+1)
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content)
	}

	s.log.Error("commentary generation exhausted retries, using fallback")
	return Fallback(events)
}

// buildPrompt renders the events into one of the rotating persona prompts.
func buildPrompt(events []model.HistoryEvent, style string) string {
	var list strings.Builder
	for i, e := range events {
		fmt.Fprintf(&list, "%d. In %s, %s\n", i+1, e.Year, e.Description)
	}

	switch style {
	case "pooter":
		return fmt.Sprintf(`You are Charles Pooter from "Diary of a Nobody," recording notable historical events with characteristic earnestness and blind spots.

Historical events for today:
%s
Write a diary entry covering these events (200-300 words total). Introduce today's observations with Pooter earnestness, comment on each event briefly with slight misunderstandings of their importance and comparisons to mundane personal matters, and close by digressing into a domestic matter that seems equally important to world history.

Style: formal Victorian language, unintentionally comic, self-important about trivia.

Begin: "📜 **On This Day in History**"`, list.String())

	case "jerome":
		return fmt.Sprintf(`You are writing in the style of Jerome K. Jerome from "Three Men in a Boat" - observational, meandering, self-deprecating.

Historical events for today:
%s
Open with "📜 **On This Day in History**". Present each fact briefly (1-2 sentences), with humorous digressions and self-deprecating observations about modern life between events. End with an understated, meandering conclusion. 250-350 words.

CRITICAL: Base your entry ONLY on these verified historical facts. Do NOT add invented historical details.`, list.String())

	default:
		return fmt.Sprintf(`You are creating daily "On This Day in History" content for a Discord server. Your style combines Victorian British humor (Jerome K. Jerome and George Grossmith) with modern Discord formatting.

Historical events for today:
%s
Open with "📜 **On This Day in History**". Present each fact in 1-2 sentences followed by brief Victorian-style commentary. Sprinkle in self-deprecating comparisons to modern times, mundane digressions and the occasional terrible Victorian pun. 250-350 words.

CRITICAL: Base your entry ONLY on these verified historical facts. Do NOT add invented historical details.`, list.String())
	}
}

// Fallback renders the events without any commentary.
func Fallback(events []model.HistoryEvent) string {
	var b strings.Builder
	b.WriteString("📜 **On This Day in History**\n\n")
	for _, e := range events {
		fmt.Fprintf(&b, "• In %s, %s\n", e.Year, e.Description)
	}
	b.WriteString("\n_The muse declined to comment this morning._")
	return b.String()
}
