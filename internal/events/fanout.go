package events

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/chirp/internal/posts"
)

// Fanout delivers every event to each of its publishers in order.
// All publishers are attempted; their failures are joined.
type Fanout []posts.Publisher

// NewFanout drops nil publishers.
func NewFanout(publishers ...posts.Publisher) Fanout {
	fanout := make(Fanout, 0, len(publishers))
	for _, publisher := range publishers {
		if publisher != nil {
			fanout = append(fanout, publisher)
		}
	}
	return fanout
}

func (f Fanout) PublishPostCreated(ctx context.Context, post posts.Post) error {
	var errs []error
	for _, publisher := range f {
		if err := publisher.PublishPostCreated(ctx, post); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
