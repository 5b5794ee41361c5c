package live

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_Notify(t *testing.T) {
	hub := NewHub()
	cases := hub.Subscribe("cases")
	defer cases.Close()
	users := hub.Subscribe("users")
	defer users.Close()

	hub.Notify("cases")
	hub.Notify("cases") // coalesced

	select {
	case col := <-cases.C:
		assert.Equal(t, "cases", col)
	default:
		t.Fatal("cases subscription not notified")
	}
	select {
	case <-cases.C:
		t.Fatal("notifications should be coalesced")
	default:
	}
	select {
	case <-users.C:
		t.Fatal("users subscription should not be notified")
	default:
	}
}

func TestSubscription_Close(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("cases")
	require.Equal(t, 1, hub.Len())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Len())

	hub.Notify("cases")
	select {
	case <-sub.C:
		t.Fatal("closed subscription should not be notified")
	default:
	}
}

func TestWatch(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	var runs int
	snapshots := Watch(ctx, hub, func(context.Context) (interface{}, error) {
		runs++
		return runs, nil
	}, "cases")

	first := <-snapshots
	require.NoError(t, first.Err)
	assert.Equal(t, 1, first.Items)

	hub.Notify("progress") // not watched
	hub.Notify("cases")
	second := <-snapshots
	assert.Equal(t, 2, second.Items)

	cancel()
	select {
	case _, ok := <-snapshots:
		if ok {
			// a snapshot may race with cancellation; the channel must still close
			_, ok = <-snapshots
		}
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWatch_queryError(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int
	snapshots := Watch(ctx, hub, func(context.Context) (interface{}, error) {
		runs++
		if runs == 1 {
			return nil, errors.New("connection lost")
		}
		return runs, nil
	}, "cases")

	first := <-snapshots
	require.EqualError(t, first.Err, "connection lost")
	assert.Nil(t, first.Items)

	// the watch keeps going after a failed query
	hub.Notify("cases")
	second := <-snapshots
	require.NoError(t, second.Err)
	assert.Equal(t, 2, second.Items)
	assert.Equal(t, 1, hub.Len())
}
