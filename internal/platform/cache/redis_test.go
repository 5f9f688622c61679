package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndJSONRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	var missing []string
	found, err := GetJSON(context.Background(), client, "perms:1", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetJSON(context.Background(), client, "perms:1", []string{"billing.invoice.view"}, time.Minute))
	var perms []string
	found, err = GetJSON(context.Background(), client, "perms:1", &perms)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"billing.invoice.view"}, perms)

	mr.FastForward(2 * time.Minute)
	found, err = GetJSON(context.Background(), client, "perms:1", &perms)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewFailsWithoutServer(t *testing.T) {
	_, err := New(context.Background(), Options{Addr: "127.0.0.1:1", PingTimeout: 200 * time.Millisecond})
	require.Error(t, err)
}
