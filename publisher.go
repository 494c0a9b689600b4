package btreex

import (
	"context"

	"github.com/google/uuid"
)

// TransitionEvent describes one sub-status change of one node.
type TransitionEvent struct {
	TreeID uuid.UUID `json:"treeID" yaml:"treeID"`
	Node   string    `json:"node" yaml:"node"`
	Index  int       `json:"index" yaml:"index"`
	From   SubStatus `json:"from" yaml:"from"`
	To     SubStatus `json:"to" yaml:"to"`
	Status Status    `json:"status" yaml:"status"`
	Frame  uint64    `json:"frame" yaml:"frame"`
}

// Publisher receives node transitions. Publish is called synchronously from
// the ticking goroutine and must not block.
type Publisher interface {
	Publish(ctx context.Context, event TransitionEvent) error
	Close() error
}

// ChannelPublisher forwards transitions to a Go channel.
// Non-blocking publish with drop on backpressure.
type ChannelPublisher struct {
	ch chan<- TransitionEvent
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- TransitionEvent) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event TransitionEvent) error {
	select {
	case p.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil // Non-blocking drop
	}
}

func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}
