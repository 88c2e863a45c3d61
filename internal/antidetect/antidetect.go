// Package antidetect generates the timing and identity values used to keep
// repeated automated page loads from presenting a uniform signature: rotating
// browser fingerprints, randomized delays, humanized interaction sequences,
// and rate-limit/backoff decisions.
//
// Counters are scoped per Engine instance; each concurrent scraping session
// must own its own Engine so the adaptive-delay and rotation heuristics of
// one session do not bleed into another.
package antidetect

import (
	"math/rand/v2"
	"sync"
	"time"
)

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Fingerprint bundles the identity values presented to the scraped site.
type Fingerprint struct {
	UserAgent string   `json:"userAgent"`
	Viewport  Viewport `json:"viewport"`
	Timezone  string   `json:"timezone"`
	Language  string   `json:"language"`
	Platform  string   `json:"platform"`
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
}

var viewports = []Viewport{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{1280, 720},
}

var timezones = []string{"Asia/Jakarta", "Asia/Singapore", "Asia/Bangkok", "Asia/Kuala_Lumpur"}

var languages = []string{"en-US", "en-GB", "id-ID", "en-SG"}

var platforms = []string{"Win32", "MacIntel", "Linux x86_64"}

const (
	defaultMinDelay = 1 * time.Second
	defaultMaxDelay = 3 * time.Second

	// Request-counter thresholds for the adaptive slowdown.
	slowdownThreshold = 20
	crawlThreshold    = 50

	// Session rotation triggers.
	rotateAfter    = 30 * time.Minute
	rotateRequests = 100

	rateLimitLatency = 10 * time.Second
	maxBackoff       = 60 * time.Second
)

// Engine produces non-deterministic but bounded anti-detection values over
// internal counters. None of its operations can fail; the only side effect
// is counter mutation. Safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	uaIdx     int
	vpIdx     int
	viewport  Viewport
	requests  int
	startedAt time.Time

	minDelay time.Duration
	maxDelay time.Duration
	now      func() time.Time
	rng      *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithDelayWindow sets the [min,max] window used by RandomDelay and, scaled,
// by AdaptiveDelay.
func WithDelayWindow(min, max time.Duration) Option {
	return func(e *Engine) {
		if min > 0 && max >= min {
			e.minDelay, e.maxDelay = min, max
		}
	}
}

// WithClock overrides the wall clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand overrides the random source. Used in tests.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		minDelay: defaultMinDelay,
		maxDelay: defaultMaxDelay,
		now:      time.Now,
		viewport: viewports[0],
	}
	for _, o := range opts {
		o(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(e.now().UnixNano()), rand.Uint64()))
	}
	e.startedAt = e.now()
	return e
}

// NextUserAgent returns the next user agent from the pool, round-robin.
func (e *Engine) NextUserAgent() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ua := userAgents[e.uaIdx%len(userAgents)]
	e.uaIdx++
	return ua
}

// NextViewport returns the next viewport from the pool, round-robin.
func (e *Engine) NextViewport() Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextViewportLocked()
}

func (e *Engine) nextViewportLocked() Viewport {
	vp := viewports[e.vpIdx%len(viewports)]
	e.vpIdx++
	e.viewport = vp
	return vp
}

// RandomDelay returns a uniform duration in the configured window.
func (e *Engine) RandomDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.randomDelayLocked()
}

func (e *Engine) randomDelayLocked() time.Duration {
	span := e.maxDelay - e.minDelay
	if span <= 0 {
		return e.minDelay
	}
	return e.minDelay + time.Duration(e.rng.Int64N(int64(span)+1))
}

// AdaptiveDelay counts one request and returns a RandomDelay scaled by how
// many requests this engine has already issued: 1x below 20 requests, 1.5x
// from 20, 2x from 50. Models slowing down under sustained load.
func (e *Engine) AdaptiveDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests++
	d := e.randomDelayLocked()
	switch {
	case e.requests >= crawlThreshold:
		return d * 2
	case e.requests >= slowdownThreshold:
		return d * 3 / 2
	default:
		return d
	}
}

// RequestCount returns how many requests have been counted since creation or
// the last Reset.
func (e *Engine) RequestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests
}

// ShouldRotateSession reports whether the fingerprint/session identity is due
// for a refresh: more than 30 minutes or 100 requests since the last Reset.
func (e *Engine) ShouldRotateSession() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now().Sub(e.startedAt) > rotateAfter || e.requests > rotateRequests
}

// Reset zeroes the request counter and rotation clock. Called after the
// orchestrator rotates the session identity.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = 0
	e.startedAt = e.now()
}

// IsRateLimited classifies a response as rate limiting: HTTP 429 or 503, or
// a response slower than 10 seconds. Pure; no I/O.
func (e *Engine) IsRateLimited(responseTime time.Duration, statusCode int) bool {
	return statusCode == 429 || statusCode == 503 || responseTime > rateLimitLatency
}

// BackoffDelay returns 2^attempt seconds plus up to one second of jitter,
// capped at 60 seconds. attempt is zero-based.
func (e *Engine) BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 6 {
		attempt = 6 // 2^6 already exceeds the cap
	}
	d := time.Duration(1<<uint(attempt)) * time.Second

	e.mu.Lock()
	d += time.Duration(e.rng.Int64N(int64(time.Second)))
	e.mu.Unlock()

	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Fingerprint assembles a fresh identity bundle: the next user agent and
// viewport plus a random timezone/language/platform from fixed pools.
// Consumed once per session, or per rotation.
func (e *Engine) Fingerprint() Fingerprint {
	e.mu.Lock()
	defer e.mu.Unlock()
	ua := userAgents[e.uaIdx%len(userAgents)]
	e.uaIdx++
	return Fingerprint{
		UserAgent: ua,
		Viewport:  e.nextViewportLocked(),
		Timezone:  timezones[e.rng.IntN(len(timezones))],
		Language:  languages[e.rng.IntN(len(languages))],
		Platform:  platforms[e.rng.IntN(len(platforms))],
	}
}

// MouseMovements returns a short random path (3-7 points) inside the current
// viewport, used to humanize clicks.
func (e *Engine) MouseMovements() []Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 3 + e.rng.IntN(5)
	points := make([]Point, n)
	for i := range points {
		points[i] = Point{
			X: e.rng.IntN(e.viewport.Width),
			Y: e.rng.IntN(e.viewport.Height),
		}
	}
	return points
}

// ScrollAmount returns a random scroll distance between 300 and 800 pixels.
func (e *Engine) ScrollAmount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return 300 + e.rng.IntN(501)
}

// TypingDelays returns one inter-keystroke delay per character of text,
// each between 50 and 150 milliseconds.
func (e *Engine) TypingDelays(text string) []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	delays := make([]time.Duration, len([]rune(text)))
	for i := range delays {
		delays[i] = time.Duration(50+e.rng.IntN(101)) * time.Millisecond
	}
	return delays
}
