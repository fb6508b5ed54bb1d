package docker

import (
	"context"

	"github.com/moby/moby/api/types/events"
	"github.com/moby/moby/client"
)

// WatchEvents subscribes to container lifecycle events from the daemon.
// Both channels close when ctx is cancelled; the error channel delivers
// stream failures, after which the subscription is dead and the caller
// must resubscribe.
func (c *Client) WatchEvents(ctx context.Context) (<-chan events.Message, <-chan error) {
	res := c.api.Events(ctx, client.EventsListOptions{
		Filters: make(client.Filters).Add("type", "container"),
	})
	return res.Messages, res.Err
}
