package voiceflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LaunchMessage is emitted for launch request turns, which carry no
// user text of their own.
const LaunchMessage = "Conversation started"

// ExtractMessage maps a raw turn payload to plain text. It is total:
// any shape it does not recognize yields the empty string, never an
// error. Callers drop empty strings before classification.
func ExtractMessage(turn Turn) string {
	if len(turn.Payload) == 0 {
		return ""
	}

	var p payload
	if err := json.Unmarshal(turn.Payload, &p); err != nil {
		return ""
	}

	// Bot utterances arrive as slate rich-text blocks.
	if p.Inner != nil && p.Inner.Slate != nil && len(p.Inner.Slate.Content) > 0 {
		return extractSlate(p.Inner.Slate)
	}

	// User input turns: explicit query, then button label, then the
	// launch marker.
	if p.Inner != nil {
		if p.Inner.Query != "" {
			return p.Inner.Query
		}
		if p.Inner.Label != "" {
			return p.Inner.Label
		}
	}
	if p.Type == "launch" {
		return LaunchMessage
	}
	if p.Inner != nil {
		if p.Inner.Message != "" {
			return p.Inner.Message
		}
		if p.Inner.Text != "" {
			return p.Inner.Text
		}
	}

	// Fallbacks for older payload shapes.
	if p.Message != "" {
		return p.Message
	}
	if p.Text != "" {
		return p.Text
	}
	if p.Data != nil {
		if p.Data.Message != "" {
			return p.Data.Message
		}
		if p.Data.Text != "" {
			return p.Data.Text
		}
	}

	return ""
}

// extractSlate flattens rich-text blocks: children of a block are
// joined with no separator, blocks are joined with a newline. Links
// keep their visible text and URL as markdown; fontWeight 700 marks
// bold.
func extractSlate(s *slate) string {
	blocks := make([]string, 0, len(s.Content))
	for _, block := range s.Content {
		var b strings.Builder
		for _, child := range block.Children {
			b.WriteString(renderNode(child))
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

func renderNode(n slateNode) string {
	if n.Type == "link" {
		text := n.Text
		if text == "" && len(n.Children) > 0 {
			text = n.Children[0].Text
		}
		if n.URL != "" {
			return fmt.Sprintf("[%s](%s)", text, n.URL)
		}
		return text
	}
	if n.FontWeight == "700" && n.Text != "" {
		return "**" + n.Text + "**"
	}
	return n.Text
}

// ExtractMessages runs ExtractMessage over an ordered turn list and
// drops empty results.
func ExtractMessages(turns []Turn) []string {
	messages := make([]string, 0, len(turns))
	for _, turn := range turns {
		if msg := ExtractMessage(turn); msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages
}
