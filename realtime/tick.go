package realtime

import (
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/comalice/btreex"
)

// Post is a closure queued for the tick goroutine, with ordering metadata.
type Post struct {
	Fn          func(*btreex.Tree)
	SequenceNum uint64
	Priority    int
}

// step runs one complete tick: posted closures in order, then the tree.
func (rt *Runtime) step() (done bool, st btreex.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
		rt.mu.Lock()
		rt.tickNum++
		rt.mu.Unlock()
	}()

	posts := rt.collectPosts()
	sortPosts(posts)
	for _, p := range posts {
		rt.runPost(p)
	}
	done, st = rt.tree.Tick()
	return done, st, nil
}

func (rt *Runtime) runPost(p Post) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("posted closure panicked", "sequence", p.SequenceNum, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	p.Fn(rt.tree)
}

// collectPosts atomically retrieves and clears the queue.
func (rt *Runtime) collectPosts() []Post {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	posts := rt.posts
	rt.posts = make([]Post, 0, rt.maxPosts)
	return posts
}

// sortPosts orders posts by priority (higher first), then by submission.
func sortPosts(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Priority != posts[j].Priority {
			return posts[i].Priority > posts[j].Priority
		}
		return posts[i].SequenceNum < posts[j].SequenceNum
	})
}
