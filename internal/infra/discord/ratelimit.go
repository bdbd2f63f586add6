package discord

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/osa030/vcbox/internal/domain/guild"
)

// guildLimiter throttles commands per guild.
type guildLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[guild.ID]*rate.Limiter
}

func newGuildLimiter(perSecond float64, burst int) *guildLimiter {
	return &guildLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[guild.ID]*rate.Limiter),
	}
}

// Allow reports whether a command from g may run now.
func (l *guildLimiter) Allow(g guild.ID) bool {
	l.mu.Lock()
	lim, ok := l.limiters[g]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[g] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
