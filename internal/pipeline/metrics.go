package pipeline

import (
	"math"

	"github.com/treshel/botboard/internal/models"
	"github.com/treshel/botboard/internal/voiceflow"
)

// ComputeMetrics derives the stored metrics from a transcript's full
// turn list. Timestamps may arrive out of order, so first/last are
// min/max over all turns, not the ends of the slice.
//
// IsComplete is a heuristic for "the bot spoke last and the user did
// not respond again": the final turn in delivery order is a choice,
// or it is a text turn with no request turn starting strictly after
// it. A request at exactly the same timestamp does not flip the flag;
// ties resolve by delivery order.
func ComputeMetrics(turns []voiceflow.Turn) models.Metrics {
	metrics := models.Metrics{}

	for _, turn := range turns {
		if turn.Type == voiceflow.TurnTypeText || turn.Type == voiceflow.TurnTypeRequest {
			metrics.MessageCount++
		}
	}

	if len(turns) == 0 {
		return metrics
	}

	first := turns[0].StartTime
	last := turns[0].StartTime
	for _, turn := range turns[1:] {
		if turn.StartTime.Before(first) {
			first = turn.StartTime
		}
		if turn.StartTime.After(last) {
			last = turn.StartTime
		}
	}
	metrics.FirstResponse = &first
	metrics.LastResponse = &last

	duration := int(math.Round(last.Sub(first).Seconds()))
	metrics.Duration = &duration

	lastTurn := turns[len(turns)-1]
	switch lastTurn.Type {
	case voiceflow.TurnTypeChoice:
		metrics.IsComplete = true
	case voiceflow.TurnTypeText:
		metrics.IsComplete = true
		for _, turn := range turns {
			if turn.Type == voiceflow.TurnTypeRequest && turn.StartTime.After(lastTurn.StartTime) {
				metrics.IsComplete = false
				break
			}
		}
	}

	return metrics
}
