package ratelimit

func (l *MemoryLimiter) Keys() int {
	return l.keys()
}
