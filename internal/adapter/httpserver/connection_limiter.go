package httpserver

import (
	"sync"
	"sync/atomic"
)

// globalLimiter caps concurrent sockets on this instance. Lock-free.
type globalLimiter struct {
	current atomic.Int64
	max     int64
}

func (l *globalLimiter) acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalLimiter) release() {
	l.current.Add(-1)
}

// ipLimiter caps concurrent sockets per remote IP.
type ipLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func (l *ipLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *ipLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
}

func (l *ipLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}

// LimitReason describes why a connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits bounds concurrent sockets globally and per IP.
// The per-IP connect rate is enforced separately by the echo rate limiter on /ws.
type ConnectionLimits struct {
	global globalLimiter
	perIP  ipLimiter
}

func NewConnectionLimits(globalMax int64, perIPMax int) *ConnectionLimits {
	return &ConnectionLimits{
		global: globalLimiter{max: globalMax},
		perIP:  ipLimiter{ips: make(map[string]int), maxPer: perIPMax},
	}
}

// Acquire reserves a slot for ip. On failure nothing is held and the reason is returned.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.global.acquire() {
		return false, LimitReasonGlobal
	}
	if !l.perIP.acquire(ip) {
		l.global.release()
		return false, LimitReasonPerIP
	}
	return true, ""
}

// Release frees the slot held for ip.
func (l *ConnectionLimits) Release(ip string) {
	l.perIP.release(ip)
	l.global.release()
}

// Current returns the number of held slots.
func (l *ConnectionLimits) Current() int64 {
	return l.global.current.Load()
}

// CountFor returns the number of slots held by ip.
func (l *ConnectionLimits) CountFor(ip string) int {
	return l.perIP.count(ip)
}
