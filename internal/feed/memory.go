package feed

import "context"

// MemoryFeed connects stores living in the same process.
type MemoryFeed struct {
	*hub
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{hub: newHub()}
}

func (f *MemoryFeed) Publish(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.isClosed() {
		return ErrClosed
	}
	f.dispatch(c)
	return nil
}

func (f *MemoryFeed) Close() error {
	f.close()
	return nil
}
