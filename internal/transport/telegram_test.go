package transport

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestClassifyBlockedErrors(t *testing.T) {
	blocked := []error{
		tele.ErrBlockedByUser,
		tele.ErrUserIsDeactivated,
		tele.ErrNotStartedByUser,
		tele.ErrChatNotFound,
	}
	for _, err := range blocked {
		assert.Equal(t, OutcomeBlocked, Classify(err), "%v", err)
	}
}

func TestClassifyOtherErrorsAsFailed(t *testing.T) {
	assert.Equal(t, OutcomeFailed, Classify(fmt.Errorf("connection reset")))
	assert.Equal(t, OutcomeFailed, Classify(tele.ErrTooLarge))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "sent", OutcomeSent.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "blocked", OutcomeBlocked.String())
}
