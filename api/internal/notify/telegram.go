package notify

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/merge"
	"ui-annotator/api/internal/pipeline"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts run summaries and annotated images to one chat.
type Telegram struct {
	Bot    Sender
	ChatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{Bot: bot, ChatID: chatID}, nil
}

// AnnotationDone sends the per-component status table followed by one photo
// per component that has an annotated image.
func (t *Telegram) AnnotationDone(screenshotID string, comps []annotate.ComponentDetectionResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "*Screenshot* `%s`: %d components\n", esc(screenshotID), len(comps))
	for _, c := range comps {
		counts := map[annotate.ElementStatus]int{}
		for _, el := range c.Elements {
			counts[el.Status]++
		}
		fmt.Fprintf(&b, "%s %s: %d/%d detected, %d errors, %dms\n",
			statusIcon(c.Status), esc(c.ComponentName),
			counts[annotate.StatusDetected], len(c.Elements), counts[annotate.StatusError], c.TotalInferenceTimeMs)
	}
	if err := t.sendText(b.String()); err != nil {
		return err
	}

	for _, c := range comps {
		if len(c.AnnotatedImage) == 0 {
			continue
		}
		photo := tgbotapi.NewPhoto(t.ChatID, tgbotapi.FileBytes{
			Name:  fileName(c.ComponentName) + ".png",
			Bytes: c.AnnotatedImage,
		})
		photo.Caption = c.ComponentName
		if _, err := t.Bot.Send(photo); err != nil {
			return fmt.Errorf("telegram photo %q: %w", c.ComponentName, err)
		}
	}
	return nil
}

// ValidationDone summarises accuracy per component and lists failed merges.
func (t *Telegram) ValidationDone(screenshotID string, comps []annotate.ComponentDetectionResult, outcomes []pipeline.MergeOutcome) error {
	var b strings.Builder
	fmt.Fprintf(&b, "*Validation* `%s`\n", esc(screenshotID))
	for _, c := range comps {
		s := merge.Summarize(c.Elements)
		if s.Scored == 0 {
			fmt.Fprintf(&b, "%s: no scores\n", esc(c.ComponentName))
			continue
		}
		fmt.Fprintf(&b, "%s: mean %.1f ± %.1f over %d, %d overwritten, %d hidden\n",
			esc(c.ComponentName), s.Mean, s.StdDev, s.Scored, s.Overwritten, s.Hidden)
	}
	var failed []string
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, esc(o.ComponentName))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		fmt.Fprintf(&b, "unchanged: %s\n", strings.Join(failed, ", "))
	}
	return t.sendText(b.String())
}

func (t *Telegram) sendText(text string) error {
	msg := tgbotapi.NewMessage(t.ChatID, text)
	msg.ParseMode = "Markdown"
	if _, err := t.Bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func statusIcon(s annotate.ComponentStatus) string {
	switch s {
	case annotate.ComponentSuccess:
		return "✅"
	case annotate.ComponentPartial:
		return "⚠️"
	default:
		return "❌"
	}
}

func fileName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "component"
	}
	return s
}

// light Markdown escaping
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}
