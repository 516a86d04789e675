// Package notify provides the thread-safe in-memory feed of user-visible
// notifications, and a latch that suppresses repeats of the same ongoing
// failure.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Levels used by the feed.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Message represents a single notification
type Message struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Level     string    `json:"level"` // info, success, warning, error
}

// Feed keeps the last maxSize notifications
type Feed struct {
	mu       sync.RWMutex
	messages []Message
	maxSize  int
	nextSub  int
	subs     map[int]func(Message)
}

// New creates a feed with the specified max message count
func New(maxSize int) *Feed {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Feed{
		messages: make([]Message, 0, maxSize),
		maxSize:  maxSize,
		subs:     make(map[int]func(Message)),
	}
}

// Post adds a new message and hands it to subscribers
func (f *Feed) Post(level, text string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Text:      text,
		Level:     level,
	}

	f.mu.Lock()
	f.messages = append(f.messages, msg)
	if len(f.messages) > f.maxSize {
		f.messages = f.messages[len(f.messages)-f.maxSize:]
	}
	subs := make([]func(Message), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
	return msg
}

func (f *Feed) Info(text string)    { f.Post(LevelInfo, text) }
func (f *Feed) Success(text string) { f.Post(LevelSuccess, text) }
func (f *Feed) Warning(text string) { f.Post(LevelWarning, text) }
func (f *Feed) Error(text string)   { f.Post(LevelError, text) }

// Subscribe registers fn for new messages and returns its remover
func (f *Feed) Subscribe(fn func(Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// GetRecent returns the most recent n messages (newest first)
func (f *Feed) GetRecent(n int) []Message {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n > len(f.messages) || n < 0 {
		n = len(f.messages)
	}
	result := make([]Message, n)
	for i := 0; i < n; i++ {
		result[i] = f.messages[len(f.messages)-1-i]
	}
	return result
}

// GetAll returns all messages (newest first)
func (f *Feed) GetAll() []Message {
	return f.GetRecent(-1)
}
