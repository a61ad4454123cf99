package relayerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := ErrRecipientOffline("bob")
	assert.Equal(t, "RECIPIENT_OFFLINE: User 'bob' is offline or not found.", err.Error())
	assert.Equal(t, "User 'bob' is offline or not found.", err.UserMessage())
	assert.Equal(t, CategoryRouting, err.Category)
}

func TestErrorWithCause(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := ErrInvalidPayload(cause)

	assert.Contains(t, err.Error(), "caused by: unexpected EOF")
	assert.ErrorIs(t, err, cause)
}

func TestErrorsAsRelayError(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", ErrNotIdentified())

	var relayErr *RelayError
	require.ErrorAs(t, wrapped, &relayErr)
	assert.Equal(t, ErrCodeNotIdentified, relayErr.Code)
	assert.Equal(t, "Set a username first.", relayErr.UserMessage())
}

func TestUserVisibleTexts(t *testing.T) {
	// These texts are part of the client contract; keep them stable.
	assert.Equal(t, "Set a username first.", ErrNotIdentified().UserMessage())
	assert.Equal(t, "Please select a recipient.", ErrMissingRecipient().UserMessage())
	assert.Equal(t, "Message cannot be empty.", ErrEmptyText().UserMessage())
	assert.Equal(t, "Invalid message data", ErrInvalidPayload(nil).UserMessage())
	assert.Equal(t, "An error occurred. Please try again.", ErrInternal(nil).UserMessage())
}

func TestCategories(t *testing.T) {
	assert.Equal(t, CategoryIdentity, ErrNameInUse("x").Category)
	assert.Equal(t, CategoryValidation, ErrEmptyText().Category)
	assert.Equal(t, CategoryInternal, ErrInternal(nil).Category)
}
