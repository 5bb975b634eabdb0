// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/services"
)

// PushCall is one recorded [FakePushService] call.
type PushCall struct {
	Op    string // "subscribe" or "unsubscribe"
	Topic string
}

// FakePushService is a test double for [services.PushService]
type FakePushService struct {
	mu     sync.Mutex
	calls  []PushCall
	topics map[string]bool
	fail   map[string]error
}

// NewFakePushService creates an empty [FakePushService].
func NewFakePushService() *FakePushService {
	return &FakePushService{topics: make(map[string]bool), fail: make(map[string]error)}
}

// FailTopic makes calls for topic return err. A nil err clears the failure.
func (f *FakePushService) FailTopic(topic string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, topic)
		return
	}
	f.fail[topic] = err
}

func (f *FakePushService) Subscribe(_ context.Context, topic string) error {
	return f.record("subscribe", topic, true)
}

func (f *FakePushService) Unsubscribe(_ context.Context, topic string) error {
	return f.record("unsubscribe", topic, false)
}

func (f *FakePushService) Name() string { return "fake" }

// Calls returns every recorded call in order.
func (f *FakePushService) Calls() []PushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PushCall(nil), f.calls...)
}

// CallsFor returns the topics recorded for op in order.
func (f *FakePushService) CallsFor(op string) []string {
	var topics []string
	for _, c := range f.Calls() {
		if c.Op == op {
			topics = append(topics, c.Topic)
		}
	}
	return topics
}

// Reset forgets recorded calls but keeps subscriptions.
func (f *FakePushService) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Topics returns the currently subscribed topics in lexical order.
func (f *FakePushService) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	topics := make([]string, 0, len(f.topics))
	for topic := range f.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (f *FakePushService) record(op, topic string, subscribed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, PushCall{Op: op, Topic: topic})
	if err := f.fail[topic]; err != nil {
		return err
	}
	if subscribed {
		f.topics[topic] = true
	} else {
		delete(f.topics, topic)
	}
	return nil
}

// FakeRegistrar is a test double for [services.Registrar]
type FakeRegistrar struct {
	mu       sync.Mutex
	requests []services.RegistrationRequest
	Response *services.RegistrationResponse
	Err      error
	Entered  chan struct{} // when set, each call sends on it before waiting on Release
	Release  chan struct{} // when set, calls block until it is closed
}

func (f *FakeRegistrar) Register(_ context.Context, req services.RegistrationRequest) (*services.RegistrationResponse, error) {
	if f.Entered != nil {
		f.Entered <- struct{}{}
	}
	if f.Release != nil {
		<-f.Release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Response == nil {
		return &services.RegistrationResponse{Success: true}, nil
	}
	return f.Response, nil
}

// Requests returns every registration received.
func (f *FakeRegistrar) Requests() []services.RegistrationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.RegistrationRequest(nil), f.requests...)
}

// SetErr replaces the error returned by later calls.
func (f *FakeRegistrar) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// RecordingRenderer records channels and rendered notifications
type RecordingRenderer struct {
	mu       sync.Mutex
	channels []models.Channel
	rendered []models.Notification
	Err      error
}

func (r *RecordingRenderer) CreateChannels(_ context.Context, channels []models.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channels...)
	return nil
}

func (r *RecordingRenderer) Render(_ context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.rendered = append(r.rendered, n)
	return nil
}

// Channels returns every channel registered so far.
func (r *RecordingRenderer) Channels() []models.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Channel(nil), r.channels...)
}

// Rendered returns every notification rendered so far.
func (r *RecordingRenderer) Rendered() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.rendered...)
}

// Count returns the number of rendered notifications.
func (r *RecordingRenderer) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rendered)
}

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a [Clock] at t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
