package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	msg "prodlog/messaging"
)

func TestSyncTransport_PublishFlow(t *testing.T) {
	tpt := NewSyncTransport()
	require.NoError(t, tpt.Start(context.Background()))
	defer tpt.Close()

	var got []string
	h := &msg.HandlerFunc{Name: "collect", Fn: func(ctx context.Context, m msg.IMessage) error {
		got = append(got, m.GetID())
		return nil
	}}
	require.NoError(t, tpt.Subscribe("product.template.unlink", h))

	require.NoError(t, tpt.PublishAll(context.Background(), []msg.IMessage{
		msg.NewMessage("1", "product.template.unlink", nil),
		msg.NewMessage("2", "product.product.unlink", nil),
		msg.NewMessage("3", "product.template.unlink", nil),
	}))
	assert.Equal(t, []string{"1", "3"}, got)

	require.NoError(t, tpt.Unsubscribe("product.template.unlink", h))
	assert.Error(t, tpt.Unsubscribe("product.template.unlink", h))
	assert.Equal(t, 0, tpt.Stats().HandlerCount)
}

func TestSyncTransport_HandlerError(t *testing.T) {
	tpt := NewSyncTransport()
	require.NoError(t, tpt.Start(context.Background()))

	boom := errors.New("downstream rejected")
	require.NoError(t, tpt.Subscribe(msg.WildcardType, &msg.HandlerFunc{Fn: func(context.Context, msg.IMessage) error { return boom }}))

	err := tpt.Publish(context.Background(), msg.NewMessage("9", "product.product.create", nil))
	assert.ErrorIs(t, err, boom)
}

func TestSyncTransport_NotRunning(t *testing.T) {
	tpt := NewSyncTransport()
	assert.Error(t, tpt.Publish(context.Background(), msg.NewMessage("x", "T", nil)))
	assert.Error(t, tpt.Close())
}
