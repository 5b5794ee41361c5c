package live

import "context"

// Snapshot is one full result of a watched query.
type Snapshot struct {
	Items interface{}
	Err   error
}

// QueryFunc runs the watched query.
type QueryFunc func(ctx context.Context) (interface{}, error)

// Watch runs query once immediately and again after every change on the given collections,
// pushing each result on the returned channel. The hub subscription is released and the channel
// closed once ctx is done, whatever the reason.
func Watch(ctx context.Context, hub *Hub, query QueryFunc, collections ...string) <-chan Snapshot {
	out := make(chan Snapshot)
	sub := hub.Subscribe(collections...)

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			items, err := query(ctx)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- Snapshot{Items: items, Err: err}:
			case <-ctx.Done():
				return
			}

			select {
			case <-sub.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
