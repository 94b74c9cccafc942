package pubsub

import (
	"github.com/nodis/respkit/internal/types"
)

// Registry holds the live binding from channel/pattern/shard-channel
// name to the Stream delivering its messages. A zero Registry is not
// usable; construct one with NewRegistry.
type Registry struct {
	channels      *types.Map[string, *Stream]
	patterns      *types.Map[string, *Stream]
	shardChannels *types.Map[string, *Stream]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		channels:      &types.Map[string, *Stream]{},
		patterns:      &types.Map[string, *Stream]{},
		shardChannels: &types.Map[string, *Stream]{},
	}
}

func (r *Registry) bucket(k Kind) *types.Map[string, *Stream] {
	switch k {
	case KindPattern:
		return r.patterns
	case KindShardChannel:
		return r.shardChannels
	default:
		return r.channels
	}
}

// Bind registers s as the handler for name under k, replacing whatever
// was previously bound there.
func (r *Registry) Bind(k Kind, name string, s *Stream) {
	r.bucket(k).Store(name, s)
}

// Unbind removes name's binding under k, if any.
func (r *Registry) Unbind(k Kind, name string) {
	r.bucket(k).Delete(name)
}

// Lookup finds the Stream bound to name under k.
func (r *Registry) Lookup(k Kind, name string) (*Stream, bool) {
	return r.bucket(k).Load(name)
}

// Names returns every currently bound name under k, for resubscribe
// replay after a reconnect (spec §4.6).
func (r *Registry) Names(k Kind) []string {
	return r.bucket(k).Keys()
}

// Active reports whether any channel, pattern, or shard channel is
// currently bound — the signal the mode manager uses to decide whether
// the connection should still be considered Subscribed after an
// unsubscribe (spec §9: Subscribed mode ends only once every
// subscription is gone, not after the first unsubscribe).
func (r *Registry) Active() bool {
	return r.channels.Len() > 0 || r.patterns.Len() > 0 || r.shardChannels.Len() > 0
}
