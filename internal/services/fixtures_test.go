package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/realtime"
	"github.com/AnshRaj112/campus-chat-backend/internal/repository/memory"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	learnerA = identity.Must("65a000000000000000000001")
	learnerB = identity.Must("65a000000000000000000002")
	learnerC = identity.Must("65a000000000000000000003")
	mentorM  = identity.Must("65b000000000000000000001")
	mentorN  = identity.Must("65b000000000000000000002")
	outsider = identity.Must("65c000000000000000000009")

	courseX = identity.Must("65d000000000000000000001")
)

// stepClock advances one millisecond per call so every message gets a distinct timestamp.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type recordedEvent struct {
	conversationID string
	evt            realtime.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, conversationID string, evt realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{conversationID, evt})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.evt.Type
	}
	return out
}

// staticSubscriptions marks (conversation, user) pairs as live.
type staticSubscriptions struct {
	live map[string]bool
	err  error
}

func (s *staticSubscriptions) IsSubscribed(_ context.Context, conversationID, userID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.live[conversationID+"/"+userID], nil
}

type failingNotificationStore struct{}

func (failingNotificationStore) Create(context.Context, *models.Notification) error {
	return errors.New("postgres is down")
}

func (failingNotificationStore) ListForUser(context.Context, string, bool, int) ([]models.Notification, error) {
	return nil, errors.New("postgres is down")
}

func (failingNotificationStore) MarkRead(context.Context, string, uuid.UUID) error {
	return errors.New("postgres is down")
}

type recordingSink struct {
	mu      sync.Mutex
	sent    []models.Notification
	batches int
}

func (s *recordingSink) PublishNotifications(_ context.Context, ns ...*models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	for _, n := range ns {
		s.sent = append(s.sent, *n)
	}
	return nil
}

// gatedNotificationStore holds every Create until release is closed.
type gatedNotificationStore struct {
	*memory.NotificationStore
	release chan struct{}
}

func (s *gatedNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.NotificationStore.Create(ctx, n)
}

// fakeUploader returns deterministic URLs. failOn names a file that fails;
// delay makes earlier files finish later to exercise reordering.
type fakeUploader struct {
	failOn string
	delay  func(filename string) time.Duration
	calls  atomic.Int32
}

func (u *fakeUploader) Upload(ctx context.Context, _ []byte, folder, filename string) (string, error) {
	u.calls.Add(1)
	if u.delay != nil {
		select {
		case <-time.After(u.delay(filename)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if filename == u.failOn {
		return "", fmt.Errorf("object store rejected %s", filename)
	}
	return "https://cdn.example.edu/" + folder + "/" + filename, nil
}

type env struct {
	conversations *memory.ConversationStore
	messages      *memory.MessageStore
	notifications *memory.NotificationStore
	enrollments   *memory.Enrollments
	directory     *memory.Directory
	events        *recordingPublisher
	subs          *staticSubscriptions
	sink          *recordingSink
	uploader      *fakeUploader
	clock         *stepClock

	uploadTimeout time.Duration

	notifier *services.NotificationDispatcher
	convs    *services.ConversationService
	msgs     *services.MessageService
}

type envOption func(*env)

func withUploadTimeout(d time.Duration) envOption {
	return func(e *env) { e.uploadTimeout = d }
}

func withNotificationStore(store services.NotificationStore) envOption {
	return func(e *env) {
		e.notifier = services.NewNotificationDispatcher(store, e.subs, e.sink, nil).WithClock(e.clock.Now)
	}
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	e := &env{
		conversations: memory.NewConversationStore(),
		messages:      memory.NewMessageStore(),
		notifications: memory.NewNotificationStore(),
		enrollments: memory.NewEnrollments(
			models.Enrollment{ID: "65e000000000000000000001", CourseID: string(courseX),
				Learners: []string{string(learnerA), string(learnerB)}, Mentors: []string{string(mentorM)}},
			models.Enrollment{ID: "65e000000000000000000002", CourseID: string(courseX),
				Learners: []string{string(learnerB), " " + string(learnerC) + " "}, Mentors: []string{string(mentorM)}},
			models.Enrollment{ID: "65e000000000000000000003", CourseID: string(courseX),
				Learners: []string{string(outsider)}, Mentors: []string{string(mentorN)}},
		),
		directory: memory.NewDirectory(
			models.Profile{ID: string(learnerA), Name: "Asha", Role: models.RoleUser},
			models.Profile{ID: string(mentorM), Name: "Dr. Mehta", Role: models.RoleMentor},
		),
		events:   &recordingPublisher{},
		subs:     &staticSubscriptions{live: map[string]bool{}},
		sink:     &recordingSink{},
		uploader: &fakeUploader{},
		clock:    newStepClock(),

		uploadTimeout: 2 * time.Second,
	}
	e.notifier = services.NewNotificationDispatcher(e.notifications, e.subs, e.sink, nil).WithClock(e.clock.Now)
	for _, opt := range opts {
		opt(e)
	}

	e.convs = services.NewConversationService(services.ConversationDeps{
		Conversations: e.conversations,
		Messages:      e.messages,
		Enrollments:   e.enrollments,
		Events:        e.events,
		Notifier:      e.notifier,
		Now:           e.clock.Now,
	})
	e.msgs = services.NewMessageService(services.MessageDeps{
		Conversations: e.conversations,
		Messages:      e.messages,
		Directory:     e.directory,
		Uploader:      e.uploader,
		Events:        e.events,
		Notifier:      e.notifier,
		UploadTimeout: e.uploadTimeout,
		Now:           e.clock.Now,
	})
	t.Cleanup(e.notifier.Wait)
	return e
}

// group creates a group with learners A and B and mentor M.
func (e *env) group(t *testing.T) *models.Conversation {
	t.Helper()
	conv, err := e.convs.CreateGroup(context.Background(), services.GroupInput{
		DisplayName: "Algebra I",
		CreatorID:   mentorM,
		Members:     []identity.ID{learnerA, learnerB},
		Staff:       []identity.ID{mentorM},
	})
	require.NoError(t, err)
	return conv
}

func (e *env) send(t *testing.T, conv *models.Conversation, sender identity.ID, text string, files ...services.FileUpload) *models.Message {
	t.Helper()
	msg, err := e.msgs.Send(context.Background(), services.SendInput{
		ConversationID: identity.ID(conv.ID.Hex()),
		SenderID:       sender,
		Text:           text,
		Files:          files,
	})
	require.NoError(t, err)
	return msg
}

func (e *env) lastMessage(t *testing.T, id primitive.ObjectID) *models.LastMessage {
	t.Helper()
	conv, err := e.conversations.FindByID(context.Background(), id)
	require.NoError(t, err)
	return conv.LastMessage
}

// settled waits for background notification work and returns every stored notification.
func (e *env) settled() []models.Notification {
	e.notifier.Wait()
	return e.notifications.All()
}

func (e *env) notificationsFor(userID identity.ID) []models.Notification {
	var out []models.Notification
	for _, n := range e.settled() {
		if n.UserID == string(userID) {
			out = append(out, n)
		}
	}
	return out
}

func convID(c *models.Conversation) identity.ID {
	return identity.ID(c.ID.Hex())
}

func msgID(m *models.Message) identity.ID {
	return identity.ID(m.ID.Hex())
}

func image(name string) services.FileUpload {
	return services.FileUpload{FileName: name, ContentType: "image/png", Data: []byte("\x89PNG")}
}
