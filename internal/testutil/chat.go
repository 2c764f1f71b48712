package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/govpoll/internal/chat"
	"github.com/roach88/govpoll/internal/gov"
)

// Operation names accepted by FakePlatform.FailOn.
const (
	OpCreateThread = "create_thread"
	OpPostMessage  = "post_message"
	OpCreatePoll   = "create_poll"
	OpPollCounts   = "poll_counts"
	OpHistory      = "history"
)

// FakeThread is one thread held by FakePlatform.
type FakeThread struct {
	ID    string
	Title string
	// Messages in posting order, oldest first.
	Messages []chat.Message
	Polls    map[string]chat.Poll
}

// FakePlatform is an in-memory chat.Platform.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakePlatform struct {
	mu       sync.Mutex
	clock    func() time.Time
	threads  map[string]*FakeThread
	order    []string
	votes    map[string]gov.Tally
	failures map[string]error
	failFor  map[string]map[string]error
	nextID   int
	calls    []string
}

var _ chat.Platform = (*FakePlatform)(nil)

// NewFakePlatform creates an empty platform. now stamps posted messages;
// nil uses a fixed epoch.
func NewFakePlatform(now func() time.Time) *FakePlatform {
	if now == nil {
		epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		now = func() time.Time { return epoch }
	}
	return &FakePlatform{
		clock:    now,
		threads:  make(map[string]*FakeThread),
		votes:    make(map[string]gov.Tally),
		failures: make(map[string]error),
		failFor:  make(map[string]map[string]error),
	}
}

// FailOn makes every call of op fail with err. A nil err clears it.
func (p *FakePlatform) FailOn(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// FailOnTitle makes op fail for threads whose title contains substr. Only
// OpCreateThread, OpPostMessage and OpCreatePoll consult it.
func (p *FakePlatform) FailOnTitle(op, substr string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[op] == nil {
		p.failFor[op] = make(map[string]error)
	}
	p.failFor[op][substr] = err
}

// SetVotes sets the current counts of a poll.
func (p *FakePlatform) SetVotes(pollID string, tally gov.Tally) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.votes[pollID] = tally
}

// AddMessage appends a participant message to a thread.
func (p *FakePlatform) AddMessage(threadID string, msg chat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, chat.ErrNotFound)
	}
	if msg.ID == "" {
		msg.ID = p.newID("msg")
	}
	if msg.PostedAt.IsZero() {
		msg.PostedAt = p.clock()
	}
	th.Messages = append(th.Messages, msg)
	return nil
}

// DeleteThread removes a thread and its polls.
func (p *FakePlatform) DeleteThread(threadID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.threads, threadID)
	p.order = slices.DeleteFunc(p.order, func(id string) bool { return id == threadID })
}

// Threads returns copies of all threads in creation order.
func (p *FakePlatform) Threads() []FakeThread {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FakeThread, 0, len(p.order))
	for _, id := range p.order {
		th := p.threads[id]
		cp := *th
		cp.Messages = slices.Clone(th.Messages)
		out = append(out, cp)
	}
	return out
}

// Thread returns a copy of one thread.
func (p *FakePlatform) Thread(threadID string) (FakeThread, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.threads[threadID]
	if !ok {
		return FakeThread{}, false
	}
	cp := *th
	cp.Messages = slices.Clone(th.Messages)
	return cp, true
}

// Calls returns the operation log, e.g. "create_thread:thread-1".
func (p *FakePlatform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

func (p *FakePlatform) CreateThread(_ context.Context, title string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(OpCreateThread, title); err != nil {
		return "", err
	}
	id := p.newID("thread")
	p.threads[id] = &FakeThread{ID: id, Title: title, Polls: make(map[string]chat.Poll)}
	p.order = append(p.order, id)
	p.calls = append(p.calls, OpCreateThread+":"+id)
	return id, nil
}

func (p *FakePlatform) PostMessage(_ context.Context, threadID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, chat.ErrNotFound)
	}
	if err := p.fail(OpPostMessage, th.Title); err != nil {
		return err
	}
	th.Messages = append(th.Messages, chat.Message{
		ID:         p.newID("msg"),
		AuthorID:   "bot",
		AuthorName: "govpoll",
		Bot:        true,
		Content:    content,
		PostedAt:   p.clock(),
	})
	p.calls = append(p.calls, OpPostMessage+":"+threadID)
	return nil
}

func (p *FakePlatform) CreatePoll(_ context.Context, threadID string, poll chat.Poll) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.threads[threadID]
	if !ok {
		return "", fmt.Errorf("thread %s: %w", threadID, chat.ErrNotFound)
	}
	if err := p.fail(OpCreatePoll, th.Title); err != nil {
		return "", err
	}
	id := p.newID("poll")
	th.Polls[id] = poll
	p.votes[id] = gov.NewTally()
	p.calls = append(p.calls, OpCreatePoll+":"+id)
	return id, nil
}

func (p *FakePlatform) PollCounts(_ context.Context, threadID, pollID string) (gov.Tally, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(OpPollCounts, ""); err != nil {
		return nil, err
	}
	th, ok := p.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, chat.ErrNotFound)
	}
	if _, ok := th.Polls[pollID]; !ok {
		return nil, fmt.Errorf("poll %s: %w", pollID, chat.ErrNotFound)
	}
	p.calls = append(p.calls, OpPollCounts+":"+pollID)
	out := gov.Tally{}
	for k, v := range p.votes[pollID] {
		out[k] = v
	}
	return out, nil
}

func (p *FakePlatform) History(_ context.Context, threadID string, limit int) ([]chat.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(OpHistory, ""); err != nil {
		return nil, err
	}
	th, ok := p.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, chat.ErrNotFound)
	}
	p.calls = append(p.calls, OpHistory+":"+threadID)

	// Newest first, like the real platform.
	out := make([]chat.Message, 0, min(limit, len(th.Messages)))
	for i := len(th.Messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, th.Messages[i])
	}
	return out, nil
}

func (p *FakePlatform) fail(op, title string) error {
	if err, ok := p.failures[op]; ok {
		return err
	}
	for substr, err := range p.failFor[op] {
		if substr != "" && strings.Contains(title, substr) {
			return err
		}
	}
	return nil
}

func (p *FakePlatform) newID(kind string) string {
	p.nextID++
	return fmt.Sprintf("%s-%d", kind, p.nextID)
}
