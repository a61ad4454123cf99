package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_PrivateMessage(t *testing.T) {
	raw := []byte(`{"event":"private_message","data":{"to":"bob","text":"hi"}}`)

	ev, err := Decode(raw)
	require.NoError(t, err)

	pm, ok := ev.(PrivateMessageEvent)
	require.True(t, ok, "expected PrivateMessageEvent, got %T", ev)
	assert.Equal(t, "bob", pm.To)
	assert.Equal(t, "hi", pm.Text)
}

func TestDecode_Typing(t *testing.T) {
	raw := []byte(`{"event":"typing","data":{"to":"alice","is_typing":true}}`)

	ev, err := Decode(raw)
	require.NoError(t, err)

	typ, ok := ev.(TypingEvent)
	require.True(t, ok)
	assert.Equal(t, "alice", typ.To)
	assert.True(t, typ.IsTyping)
}

func TestDecode_DatalessEvents(t *testing.T) {
	tests := []struct {
		raw  string
		want ClientEvent
	}{
		{`{"event":"join"}`, JoinEvent{}},
		{`{"event":"logout"}`, LogoutEvent{}},
		{`{"event":"get_user_list"}`, GetUserListEvent{}},
	}
	for _, tt := range tests {
		ev, err := Decode([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, ev, tt.raw)
	}
}

func TestDecode_MissingDataIsZeroValue(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"private_message"}`))
	require.NoError(t, err)

	pm, ok := ev.(PrivateMessageEvent)
	require.True(t, ok)
	assert.Empty(t, pm.To)
	assert.Empty(t, pm.Text)
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := Decode([]byte(`{"event":"broadcast_all"}`))
	require.Error(t, err)

	var unknown *ErrUnknownEvent
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, Name("broadcast_all"), unknown.Event)
}

func TestDecode_MalformedFrame(t *testing.T) {
	_, err := Decode([]byte(`{"event":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed frame")
}

func TestDecode_MalformedData(t *testing.T) {
	_, err := Decode([]byte(`{"event":"typing","data":{"is_typing":"sort of..."}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed event data")
}

func TestEncode_RoundTrip(t *testing.T) {
	data, err := Encode(ReceiveMessage, MessagePayload{
		From: "alice", To: "bob", Text: "hi", Time: "14:05",
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"event":"receive_message","data":{"from":"alice","to":"bob","text":"hi","time":"14:05"}}`,
		string(data))
}

func TestEncode_NoPayload(t *testing.T) {
	data, err := Encode(RequestLogin, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"request_login"}`, string(data))
}

func TestMustEncode(t *testing.T) {
	assert.NotPanics(t, func() {
		MustEncode(UserList, UserListPayload{Users: []string{"alice", "bob"}})
	})
}
