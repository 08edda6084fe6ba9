package classifier

import (
	"context"
	"fmt"

	"github.com/treshel/botboard/internal/models"
)

// Classifier derives {language, topic, name} from a conversation's
// extracted messages. Implementations must not be called with an
// empty message list; callers skip classification entirely when
// nothing was said.
type Classifier interface {
	Classify(ctx context.Context, messages []string) (models.Classification, error)
}

// Reasons a classification attempt can fail on the response itself.
const (
	ReasonEmptyResponse     = "empty response"
	ReasonMalformedResponse = "malformed response"
)

// ClassificationError reports an unusable model response. Callers
// keep any previously stored classification when they see one.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("classification failed: %s", e.Reason)
}

func (e *ClassificationError) Unwrap() error { return e.Err }
