package rtdb

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/sensor-dashboard/pkg/config"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	t.Cleanup(func() { c.Close() })
	return mr, c
}

func TestRead(t *testing.T) {
	mr, c := newTestClient(t)
	ctx := context.Background()

	mr.Set("current", `{"light": 320, "touch": true}`)
	mr.Set("plain", "not json")
	mr.HSet("history", "-Na", `{"t": 1000, "smoke": 95}`)
	mr.HSet("history", "-Nb", "raw")
	mr.RPush("list", `{"t": 1}`, `{"t": 2}`)

	v, err := c.Read(ctx, "current")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"light": 320.0, "touch": true}, v)

	v, err = c.Read(ctx, "plain")
	require.NoError(t, err)
	require.Equal(t, "not json", v)

	v, err = c.Read(ctx, "history")
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"-Na": map[string]any{"t": 1000.0, "smoke": 95.0},
		"-Nb": "raw",
	}, v)

	v, err = c.Read(ctx, "list")
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"t": 1.0}, map[string]any{"t": 2.0}}, v)

	v, err = c.Read(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestRead_UnsupportedType(t *testing.T) {
	mr, c := newTestClient(t)
	mr.SetAdd("set", "a")

	_, err := c.Read(context.Background(), "set")
	require.Error(t, err)
}

func TestWatch_InitialThenChanges(t *testing.T) {
	mr, c := newTestClient(t)
	mr.Set("current", `{"light": 100}`)

	values := make(chan any, 8)
	unwatch, err := c.Watch(context.Background(), "current", func(raw any) { values <- raw })
	require.NoError(t, err)
	defer unwatch()

	require.Equal(t, map[string]any{"light": 100.0}, receive(t, values))

	mr.Set("current", `{"light": 200}`)
	mr.Publish("__keyspace@0__:current", "set")
	require.Equal(t, map[string]any{"light": 200.0}, receive(t, values))

	mr.Del("current")
	mr.Publish("__keyspace@0__:current", "del")
	require.Nil(t, receive(t, values))
}

func TestWatch_MissingKeyDeliversNil(t *testing.T) {
	_, c := newTestClient(t)

	values := make(chan any, 1)
	unwatch, err := c.Watch(context.Background(), "absent", func(raw any) { values <- raw })
	require.NoError(t, err)
	defer unwatch()

	require.Nil(t, receive(t, values))
}

func TestWatch_UnwatchStopsDelivery(t *testing.T) {
	mr, c := newTestClient(t)
	mr.Set("current", `{}`)

	values := make(chan any, 8)
	unwatch, err := c.Watch(context.Background(), "current", func(raw any) { values <- raw })
	require.NoError(t, err)
	receive(t, values)

	unwatch()
	unwatch()

	mr.Set("current", `{"light": 1}`)
	mr.Publish("__keyspace@0__:current", "set")

	select {
	case v := <-values:
		t.Fatalf("unexpected delivery after unwatch: %v", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_ClosedServer(t *testing.T) {
	mr, c := newTestClient(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Watch(ctx, "current", func(any) {})
	require.Error(t, err)
}

func TestDial_Errors(t *testing.T) {
	_, err := Dial(context.Background(), config.StoreConfig{DatabaseURL: "::not a url"}, nil)
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = Dial(ctx, config.StoreConfig{DatabaseURL: "redis://127.0.0.1:1/0"}, nil)
	require.Error(t, err)
}

func receive(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}
