package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000).UTC()
	msg := &Message{
		ID:        "731",
		Type:      "product.product.write",
		Timestamp: ts,
		Payload:   map[string]any{"record_id": 11},
		Metadata:  map[string]string{"template_id": "3"},
	}

	data, err := Marshal(msg)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.GetID())
	assert.Equal(t, msg.Type, decoded.GetType())
	assert.Equal(t, ts, decoded.GetTimestamp())
	assert.Equal(t, "3", decoded.GetMetadata()["template_id"])

	raw, ok := decoded.GetPayload().(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"record_id":11}`, string(raw))
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestMarshal_UnsupportedPayload(t *testing.T) {
	_, err := Marshal(NewMessage("1", "x", make(chan int)))
	assert.Error(t, err)
}

func TestHandlers(t *testing.T) {
	var seen []string
	h1 := &HandlerFunc{Name: "a", Fn: func(ctx context.Context, m IMessage) error {
		seen = append(seen, "a:"+m.GetType())
		return nil
	}}
	h2 := &HandlerFunc{Fn: func(ctx context.Context, m IMessage) error { return nil }}
	assert.Equal(t, "a", h1.Type())
	assert.Equal(t, "func", h2.Type())

	table := map[string][]IMessageHandler{
		"product.template.create": {h1},
		WildcardType:              {h2},
	}
	matched := MatchHandlers(table, "product.template.create")
	require.Len(t, matched, 2)
	require.NoError(t, matched[0].Handle(context.Background(), NewMessage("1", "product.template.create", nil)))
	assert.Equal(t, []string{"a:product.template.create"}, seen)

	assert.Len(t, MatchHandlers(table, "other"), 1)

	remaining, found := RemoveHandler(table["product.template.create"], h1)
	assert.True(t, found)
	assert.Empty(t, remaining)
	_, found = RemoveHandler(remaining, h1)
	assert.False(t, found)

	stats := CollectStats(true, table)
	assert.Equal(t, 2, stats.HandlerCount)
	assert.Equal(t, []string{"*", "product.template.create"}, stats.MessageTypes)
}

func TestMessage_Metadata(t *testing.T) {
	m := &Message{}
	assert.NotNil(t, m.GetMetadata())
	m.SetMetadata("k", "v")
	assert.Equal(t, "v", m.GetMetadata()["k"])
	assert.Equal(t, time.UTC, NewMessage("1", "t", nil).GetTimestamp().Location())
}
