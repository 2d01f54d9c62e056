package llm

import (
	"context"
	"fmt"
	"strings"

	"herald/internal/feeds"
	"herald/internal/queue"
	"herald/internal/services"
)

const draftSystemPrompt = `You write short social media posts for a personal account.
Write in a plain, friendly voice. No hashtags unless they add meaning. Never invent facts
that are not in the source. Keep the post under 280 characters, including any link.
Respond with JSON only: {"text": "<post text>", "reason": "<one sentence on the angle you chose>"}`

const remixSystemPrompt = `You revise short social media posts. Apply the instruction to the draft
and keep everything else. Keep the post under 280 characters.
Respond with JSON only: {"text": "<revised post text>", "reason": "<one sentence on what changed>"}`

// Draft is model-written post text that fits the post limit.
type Draft struct {
	Text   string
	Reason string
	// Trimmed reports whether the model's text was shortened to fit.
	Trimmed bool
	Raw     string
}

type draftPayload struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Draft writes a post about item. guidance is optional operator direction.
func (c *Client) Draft(ctx context.Context, item feeds.Item, guidance string) (Draft, error) {
	if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.Summary) == "" {
		return Draft{}, services.Wrap(services.ErrValidation, "llm", "draft", "feed item has no title or summary", nil)
	}
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Source: %s\n", item.Source)
	if item.Author != "" {
		fmt.Fprintf(&prompt, "Author: %s\n", item.Author)
	}
	if item.Title != "" {
		fmt.Fprintf(&prompt, "Title: %s\n", item.Title)
	}
	if item.Link != "" {
		fmt.Fprintf(&prompt, "Link: %s\n", item.Link)
	}
	if item.Summary != "" {
		fmt.Fprintf(&prompt, "Summary: %s\n", item.Summary)
	}
	if guidance = strings.TrimSpace(guidance); guidance != "" {
		fmt.Fprintf(&prompt, "\nGuidance: %s\n", guidance)
	}
	return c.generate(ctx, "llm draft", draftSystemPrompt, prompt.String())
}

// Remix rewrites text following instruction.
func (c *Client) Remix(ctx context.Context, text, instruction string) (Draft, error) {
	text = strings.TrimSpace(text)
	instruction = strings.TrimSpace(instruction)
	if text == "" || instruction == "" {
		return Draft{}, services.Wrap(services.ErrValidation, "llm", "remix", "draft text and instruction are required", nil)
	}
	prompt := fmt.Sprintf("Draft:\n%s\n\nInstruction: %s", text, instruction)
	return c.generate(ctx, "llm remix", remixSystemPrompt, prompt)
}

func (c *Client) generate(ctx context.Context, op, system, user string) (Draft, error) {
	content, err := c.CompleteJSON(ctx, system, user)
	if err != nil {
		return Draft{}, err
	}
	var parsed draftPayload
	if err := DecodeJSON(content, &parsed); err != nil {
		return Draft{}, fmt.Errorf("%s: parse payload: %w", op, err)
	}
	text := queue.FitText(parsed.Text, queue.TextLimit)
	if text == "" {
		return Draft{}, services.Wrap(services.ErrValidation, "llm", op, "model returned empty text", nil)
	}
	return Draft{
		Text:    text,
		Reason:  strings.TrimSpace(parsed.Reason),
		Trimmed: text != strings.TrimSpace(queue.NormalizeText(parsed.Text)),
		Raw:     content,
	}, nil
}
