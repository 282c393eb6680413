package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/realtime"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Provenance records what justified a group conversation. Set EnrollmentID, or
// CourseID together with MentorID, or leave it zero for explicit member lists.
type Provenance struct {
	EnrollmentID identity.ID
	CourseID     identity.ID
	MentorID     identity.ID
}

type GroupInput struct {
	DisplayName string
	CreatorID   identity.ID
	Members     []identity.ID
	Staff       []identity.ID
	Provenance  Provenance
}

// ConversationService is the conversation directory: it creates, finds and
// lists conversations and applies membership changes.
type ConversationService struct {
	conversations ConversationStore
	messages      MessageStore
	enrollments   EnrollmentProvider
	events        EventPublisher
	notifier      *NotificationDispatcher
	now           func() time.Time
	log           *zap.SugaredLogger
}

type ConversationDeps struct {
	Conversations ConversationStore
	Messages      MessageStore
	Enrollments   EnrollmentProvider
	Events        EventPublisher
	Notifier      *NotificationDispatcher
	Now           func() time.Time
	Log           *zap.SugaredLogger
}

func NewConversationService(d ConversationDeps) *ConversationService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	return &ConversationService{
		conversations: d.Conversations,
		messages:      d.Messages,
		enrollments:   d.Enrollments,
		events:        d.Events,
		notifier:      d.Notifier,
		now:           d.Now,
		log:           d.Log,
	}
}

// CreateGroup creates a group conversation. Membership comes from the supplied
// lists plus whatever the provenance resolves to. A mentor of a course group
// gets the learners of every enrollment they teach in that course.
func (s *ConversationService) CreateGroup(ctx context.Context, in GroupInput) (*models.Conversation, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidContent)
	}

	members := newIDSet(in.Members...)
	staff := newIDSet(in.Staff...)
	conv := &models.Conversation{
		Kind:        models.KindGroup,
		DisplayName: name,
		Status:      models.StatusActive,
		CreatedBy:   string(in.CreatorID),
	}

	p := in.Provenance
	switch {
	case !p.EnrollmentID.IsZero():
		e, err := s.enrollments.GetEnrollment(ctx, string(p.EnrollmentID))
		if err != nil {
			return nil, fmt.Errorf("enrollment %s: %w", p.EnrollmentID, err)
		}
		members.addRaw(e.Learners, s.log)
		staff.addRaw(e.Mentors, s.log)
		conv.SourceEnrollment = string(p.EnrollmentID)
		conv.SourceCourse = e.CourseID
	case !p.CourseID.IsZero() || !p.MentorID.IsZero():
		if p.CourseID.IsZero() || p.MentorID.IsZero() {
			return nil, fmt.Errorf("%w: course groups need both course and mentor", ErrInvalidIdentity)
		}
		enrollments, err := s.enrollments.FindEnrollments(ctx, string(p.CourseID), string(p.MentorID))
		if err != nil {
			return nil, fmt.Errorf("enrollments for course %s: %w", p.CourseID, err)
		}
		if len(enrollments) == 0 {
			return nil, fmt.Errorf("%w: mentor %s has no enrollments in course %s", ErrNotFound, p.MentorID, p.CourseID)
		}
		for _, e := range enrollments {
			members.addRaw(e.Learners, s.log)
		}
		staff.add(string(p.MentorID))
		conv.SourceCourse = string(p.CourseID)
		conv.SourceMentor = string(p.MentorID)
	}

	conv.Members = members.without(staff)
	conv.Staff = staff.list()
	if len(conv.Members)+len(conv.Staff) == 0 {
		return nil, fmt.Errorf("%w: a group needs at least one participant", ErrInvalidContent)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if err := s.conversations.Insert(ctx, conv); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	s.log.Infow("group conversation created",
		"conversation", conv.ID.Hex(), "members", len(conv.Members), "staff", len(conv.Staff))

	if s.notifier != nil {
		recipients := make([]string, 0, len(conv.Members)+len(conv.Staff))
		for _, id := range conv.Participants() {
			if id != conv.CreatedBy {
				recipients = append(recipients, id)
			}
		}
		s.notifier.Notify(ctx, recipients, models.NotificationGroupCreated, conv.ID.Hex(), "")
	}
	return conv, nil
}

// FindOrCreateIndividual returns the one-on-one conversation between a learner
// and a mentor, creating it on first contact. Lookup is by the unordered pair,
// so a conversation created from either side is found.
func (s *ConversationService) FindOrCreateIndividual(ctx context.Context, userID, mentorID identity.ID, displayName string) (*models.Conversation, error) {
	if userID.IsZero() || mentorID.IsZero() {
		return nil, fmt.Errorf("%w: user and mentor are required", ErrInvalidIdentity)
	}
	if userID == mentorID {
		return nil, fmt.Errorf("%w: user and mentor must differ", ErrInvalidIdentity)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	candidate := &models.Conversation{
		Kind:        models.KindIndividual,
		DisplayName: strings.TrimSpace(displayName),
		Members:     []string{string(userID)},
		Staff:       []string{string(mentorID)},
		PairKey:     identity.PairKey(userID, mentorID),
		Status:      models.StatusActive,
		CreatedBy:   string(userID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	conv, created, err := s.conversations.UpsertIndividual(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("find or create individual conversation: %w", err)
	}
	if created {
		s.log.Infow("individual conversation created", "conversation", conv.ID.Hex(), "user", userID, "mentor", mentorID)
	}
	return conv, nil
}

// Get returns a conversation the requester belongs to.
func (s *ConversationService) Get(ctx context.Context, conversationID, requester identity.ID) (*models.Conversation, error) {
	conv, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := RequireMember(conv, requester); err != nil {
		return nil, err
	}
	return conv, nil
}

// List returns every conversation who participates in, newest activity first.
// Conversations without messages come last, most recently updated first.
func (s *ConversationService) List(ctx context.Context, who identity.ID, kind models.ConversationKind) ([]models.ConversationSummary, error) {
	if who.IsZero() {
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidIdentity)
	}
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown conversation kind %q", ErrInvalidContent, kind)
	}

	convs, err := s.conversations.ListForParticipant(ctx, string(who), kind)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	ids := make([]primitive.ObjectID, len(convs))
	for i := range convs {
		ids[i] = convs[i].ID
	}
	counts := map[primitive.ObjectID]int64{}
	if len(ids) > 0 {
		if counts, err = s.messages.CountByConversation(ctx, ids); err != nil {
			return nil, fmt.Errorf("count messages: %w", err)
		}
	}

	out := make([]models.ConversationSummary, len(convs))
	for i, c := range convs {
		out[i] = models.ConversationSummary{Conversation: c, MessageCount: counts[c.ID]}
	}
	sortSummaries(out)
	return out, nil
}

func sortSummaries(list []models.ConversationSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].LastMessage, list[j].LastMessage
		switch {
		case a != nil && b != nil:
			return a.NewerThan(*b)
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
}

// AddMembers adds learners and mentors to a group conversation. Only staff of the
// conversation may do this; newly added identities receive a user_added notification.
func (s *ConversationService) AddMembers(ctx context.Context, conversationID, actor identity.ID, members, staff []identity.ID) (*models.Conversation, error) {
	conv, err := s.loadGroupForStaff(ctx, conversationID, actor)
	if err != nil {
		return nil, err
	}

	present := newIDSet()
	for _, id := range conv.Participants() {
		present.add(id)
	}
	newStaff := newIDSet(staff...)
	newMembers := newIDSet(members...)
	var added []string
	for _, id := range append(newMembers.list(), newStaff.list()...) {
		if !present.has(id) {
			present.add(id)
			added = append(added, id)
		}
	}

	updated, err := s.conversations.AddParticipants(ctx, conv.ID, newMembers.without(newStaff), newStaff.list())
	if err != nil {
		return nil, fmt.Errorf("add members: %w", err)
	}

	if len(added) > 0 {
		s.publish(ctx, updated.ID.Hex(), realtime.Event{Type: realtime.EventTypeMembersUpdated, UserID: string(actor)})
		if s.notifier != nil {
			s.notifier.Notify(ctx, added, models.NotificationUserAdded, updated.ID.Hex(), "")
		}
	}
	return updated, nil
}

// RemoveMembers removes identities from a group conversation.
func (s *ConversationService) RemoveMembers(ctx context.Context, conversationID, actor identity.ID, ids []identity.ID) (*models.Conversation, error) {
	conv, err := s.loadGroupForStaff(ctx, conversationID, actor)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, id := range ids {
		if IsMember(conv, id) {
			removed = append(removed, string(id))
		}
	}
	if len(removed) == 0 {
		return conv, nil
	}

	updated, err := s.conversations.RemoveParticipants(ctx, conv.ID, removed)
	if err != nil {
		return nil, fmt.Errorf("remove members: %w", err)
	}

	s.publish(ctx, updated.ID.Hex(), realtime.Event{Type: realtime.EventTypeMembersUpdated, UserID: string(actor)})
	if s.notifier != nil {
		s.notifier.Notify(ctx, removed, models.NotificationUserRemoved, updated.ID.Hex(), "")
	}
	return updated, nil
}

// SetStatus archives or reactivates a conversation. Conversations are never deleted.
func (s *ConversationService) SetStatus(ctx context.Context, conversationID, actor identity.ID, status models.ConversationStatus) (*models.Conversation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidContent, status)
	}
	conv, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := RequireStaff(conv, actor); err != nil {
		return nil, err
	}
	if conv.Status == status {
		return conv, nil
	}

	updated, err := s.conversations.SetStatus(ctx, conv.ID, status)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	s.publish(ctx, updated.ID.Hex(), realtime.Event{Type: realtime.EventTypeStatusUpdated, UserID: string(actor)})
	return updated, nil
}

func (s *ConversationService) loadGroupForStaff(ctx context.Context, conversationID, actor identity.ID) (*models.Conversation, error) {
	conv, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := RequireStaff(conv, actor); err != nil {
		return nil, err
	}
	if conv.Kind != models.KindGroup {
		return nil, fmt.Errorf("%w: membership of individual conversations is fixed", ErrForbidden)
	}
	return conv, nil
}

func (s *ConversationService) load(ctx context.Context, conversationID identity.ID) (*models.Conversation, error) {
	oid, err := objectID(conversationID)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversations.FindByID(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, err)
	}
	return conv, nil
}

func (s *ConversationService) publish(ctx context.Context, conversationID string, evt realtime.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, conversationID, evt); err != nil {
		s.log.Warnw("failed to publish conversation event", "conversation", conversationID, "type", evt.Type, "error", err)
	}
}
