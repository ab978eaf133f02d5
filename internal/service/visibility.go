package service

import (
	"strings"

	"github.com/chirino/portal-service/internal/missive"
	"github.com/chirino/portal-service/internal/model"
)

// ExtractClientVisible keeps only messages whose preview or body carries
// the visibility marker and strips the marker from the preview. Pure:
// the same input and marker always produce the same output.
func ExtractClientVisible(messages []missive.Message, marker string) []model.VisibleMessage {
	out := make([]model.VisibleMessage, 0, len(messages))
	for _, msg := range messages {
		body := msg.Body.Plain
		if body == "" {
			body = msg.Body.HTML
		}
		if !strings.Contains(msg.Preview, marker) && !strings.Contains(body, marker) {
			continue
		}
		visible := model.VisibleMessage{
			ID:          msg.ID,
			Subject:     msg.Subject,
			Preview:     strings.TrimSpace(strings.Replace(msg.Preview, marker, "", 1)),
			DeliveredAt: msg.DeliveredAt,
		}
		if msg.From != nil {
			visible.From = &model.Author{Name: msg.From.Name, Address: msg.From.Address}
		}
		out = append(out, visible)
	}
	return out
}
