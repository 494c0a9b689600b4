package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/comalice/btreex"
)

var (
	ErrQueueFull      = errors.New("post queue full")
	ErrNotRunning     = errors.New("runtime not running")
	ErrAlreadyStarted = errors.New("runtime already started")
)

// Runtime drives a btreex.Tree at a fixed tick rate. The tick goroutine owns
// the tree: every tick first runs the closures posted since the previous
// tick, then ticks the tree once.
type Runtime struct {
	tree   *btreex.Tree
	logger *slog.Logger

	tickRate       time.Duration
	stopOnComplete bool

	mu          sync.Mutex
	posts       []Post
	maxPosts    int
	sequenceNum uint64
	tickNum     uint64
	started     bool

	tickCtx    context.Context
	tickCancel context.CancelFunc
	stopped    chan struct{}
	done       chan Result
	doneOnce   sync.Once
}

// Config configures the runtime.
type Config struct {
	TickRate        time.Duration // Fixed tick rate (default 60 FPS)
	MaxPostsPerTick int           // Post queue capacity (default 1000)
	StopOnComplete  bool          // Stop ticking once the root completes
	Logger          *slog.Logger
}

// Result is delivered on Done when the tick loop ends.
type Result struct {
	Tick   uint64
	Status btreex.Status
	Err    error
}

// FromConfig converts the realtime section of a tree Config.
func FromConfig(c btreex.RealtimeConfig, logger *slog.Logger) Config {
	return Config{
		TickRate:        c.TickRate,
		MaxPostsPerTick: c.MaxPostsPerTick,
		StopOnComplete:  c.StopOnComplete,
		Logger:          logger,
	}
}

// NewRuntime creates a runtime for tree.
func NewRuntime(tree *btreex.Tree, cfg Config) *Runtime {
	if cfg.MaxPostsPerTick == 0 {
		cfg.MaxPostsPerTick = 1000
	}
	if cfg.TickRate == 0 {
		cfg.TickRate = 16667 * time.Microsecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runtime{
		tree:           tree,
		logger:         cfg.Logger.With("tree", tree.ID()),
		tickRate:       cfg.TickRate,
		stopOnComplete: cfg.StopOnComplete,
		posts:          make([]Post, 0, cfg.MaxPostsPerTick),
		maxPosts:       cfg.MaxPostsPerTick,
		stopped:        make(chan struct{}),
		done:           make(chan Result, 1),
	}
}

// Start launches the tick loop. Cancelling ctx stops it.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.started {
		return ErrAlreadyStarted
	}
	rt.started = true
	rt.tickCtx, rt.tickCancel = context.WithCancel(ctx)
	go rt.tickLoop()
	return nil
}

// Stop ends the tick loop and waits for it to exit. The tree is left as it
// was after the last tick.
func (rt *Runtime) Stop() error {
	rt.mu.Lock()
	if !rt.started {
		rt.mu.Unlock()
		return ErrNotRunning
	}
	cancel := rt.tickCancel
	rt.mu.Unlock()
	cancel()
	<-rt.stopped
	return nil
}

// Done delivers one Result when the tick loop ends.
func (rt *Runtime) Done() <-chan Result {
	return rt.done
}

// Tree returns the driven tree. Only touch it from posted closures while the
// runtime is running.
func (rt *Runtime) Tree() *btreex.Tree {
	return rt.tree
}

// Post queues fn to run on the tick goroutine before the next tick.
func (rt *Runtime) Post(fn func(*btreex.Tree)) error {
	return rt.PostWithPriority(fn, 0)
}

// PostWithPriority queues fn with a priority. Higher priorities run first;
// equal priorities run in submission order.
func (rt *Runtime) PostWithPriority(fn func(*btreex.Tree), priority int) error {
	if fn == nil {
		return btreex.ErrNilNode
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.posts) >= rt.maxPosts {
		return ErrQueueFull
	}
	rt.posts = append(rt.posts, Post{
		Fn:          fn,
		SequenceNum: rt.sequenceNum,
		Priority:    priority,
	})
	rt.sequenceNum++
	return nil
}

// TickNumber returns the number of completed ticks.
func (rt *Runtime) TickNumber() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.tickNum
}

func (rt *Runtime) tickLoop() {
	defer close(rt.stopped)
	rt.tree.Bind()
	ticker := time.NewTicker(rt.tickRate)
	defer ticker.Stop()

	var last btreex.Status
	for {
		select {
		case <-rt.tickCtx.Done():
			rt.finish(Result{Tick: rt.TickNumber(), Status: last, Err: context.Cause(rt.tickCtx)})
			return
		case <-ticker.C:
			done, st, err := rt.step()
			last = st
			if err != nil {
				rt.logger.Error("tick panicked", "tick", rt.TickNumber(), "error", err)
			}
			if done && rt.stopOnComplete {
				rt.finish(Result{Tick: rt.TickNumber(), Status: st})
				return
			}
		}
	}
}

func (rt *Runtime) finish(r Result) {
	rt.doneOnce.Do(func() {
		rt.done <- r
		close(rt.done)
	})
}
