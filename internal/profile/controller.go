package profile

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/shared"
)

// Controller owns the active profile for a fixed tier and re-resolves it on health transitions.
//
// The tier never changes after construction; only the health mode moves.
type Controller struct {
	resolver *Resolver
	tier     models.Tier
	logger   *log.Logger

	current atomic.Pointer[models.PerformanceProfile]
	dropped atomic.Uint64

	mu   sync.Mutex
	subs map[int]chan models.PerformanceProfile
	next int
}

// NewController creates a [Controller] that starts in [models.HealthNormal].
func NewController(resolver *Resolver, tier models.Tier, logger *log.Logger) *Controller {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	c := &Controller{
		resolver: resolver,
		tier:     tier,
		logger:   logger,
		subs:     make(map[int]chan models.PerformanceProfile),
	}
	p := resolver.Resolve(tier, models.HealthNormal)
	c.current.Store(&p)
	return c
}

// Current returns the active profile. Safe for concurrent use without locking.
func (c *Controller) Current() models.PerformanceProfile {
	return *c.current.Load()
}

// Tier returns the hardware tier the controller was built for.
func (c *Controller) Tier() models.Tier { return c.tier }

// Dropped returns how many profile updates were skipped because a subscriber was not keeping up.
func (c *Controller) Dropped() uint64 { return c.dropped.Load() }

// Apply re-resolves the profile for mode and publishes it when it differs from the active one.
func (c *Controller) Apply(mode models.HealthMode) models.PerformanceProfile {
	next := c.resolver.Resolve(c.tier, mode)
	prev := c.current.Swap(&next)
	if prev != nil && *prev == next {
		return next
	}

	c.logger.Info("performance profile changed",
		"tier", c.tier, "mode", mode,
		"animation_scale", next.AnimationScale, "fps", next.TargetFrameRate, "image_quality", next.ImageQuality)
	c.publish(next)
	return next
}

// Subscribe registers a listener for profile changes. The returned func unsubscribes and closes the channel.
//
// Sends never block; a full channel misses the update and the drop is counted.
func (c *Controller) Subscribe(buffer int) (<-chan models.PerformanceProfile, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.PerformanceProfile, buffer)

	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Run applies transitions until ctx is cancelled or transitions is closed.
func (c *Controller) Run(ctx context.Context, transitions <-chan models.HealthTransition) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr, ok := <-transitions:
			if !ok {
				return nil
			}
			c.Apply(tr.To)
		}
	}
}

func (c *Controller) publish(p models.PerformanceProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- p:
		default:
			c.dropped.Add(1)
		}
	}
}
