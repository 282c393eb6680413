package services

import (
	"fmt"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// IsMember reports whether id is a learner or staff member of conv.
func IsMember(conv *models.Conversation, id identity.ID) bool {
	return contains(conv.Members, string(id)) || IsStaff(conv, id)
}

// IsStaff reports whether id is a mentor of conv.
func IsStaff(conv *models.Conversation, id identity.ID) bool {
	return contains(conv.Staff, string(id))
}

// RequireMember fails with ErrForbidden when id may not act in conv.
func RequireMember(conv *models.Conversation, id identity.ID) error {
	if id.IsZero() || !IsMember(conv, id) {
		return fmt.Errorf("%w: not a member of this conversation", ErrForbidden)
	}
	return nil
}

// RequireStaff fails with ErrForbidden unless id is a mentor of conv.
func RequireStaff(conv *models.Conversation, id identity.ID) error {
	if id.IsZero() || !IsStaff(conv, id) {
		return fmt.Errorf("%w: only conversation staff can do this", ErrForbidden)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func objectID(id identity.ID) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidIdentity, string(id))
	}
	return oid, nil
}

// idSet keeps identities unique in insertion order.
type idSet struct {
	order []string
	seen  map[string]struct{}
}

func newIDSet(ids ...identity.ID) *idSet {
	s := &idSet{seen: make(map[string]struct{})}
	for _, id := range ids {
		s.add(string(id))
	}
	return s
}

func (s *idSet) add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
}

// addRaw normalizes ids coming from collaborators, skipping malformed ones.
func (s *idSet) addRaw(raws []string, log *zap.SugaredLogger) {
	for _, raw := range raws {
		id, err := identity.Normalize(raw)
		if err != nil {
			log.Warnw("skipping malformed id from collaborator", "raw", raw)
			continue
		}
		s.add(string(id))
	}
}

func (s *idSet) has(id string) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *idSet) without(other *idSet) []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if !other.has(id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *idSet) list() []string {
	return append([]string(nil), s.order...)
}

