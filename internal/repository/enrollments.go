package repository

import (
	"context"
	"fmt"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	EnrollmentsCollection = "enrollments"
	UsersCollection       = "users"
	MentorsCollection     = "mentors"
)

// EnrollmentProvider reads the enrollment collection owned by the course service.
type EnrollmentProvider struct {
	col *mongo.Collection
}

func NewEnrollmentProvider(db *mongo.Database) *EnrollmentProvider {
	return &EnrollmentProvider{col: db.Collection(EnrollmentsCollection)}
}

func (p *EnrollmentProvider) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: enrollment %q", services.ErrInvalidIdentity, id)
	}
	var e models.Enrollment
	if err := p.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&e); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// FindEnrollments returns every enrollment of the course that mentorID teaches.
func (p *EnrollmentProvider) FindEnrollments(ctx context.Context, courseID, mentorID string) ([]models.Enrollment, error) {
	cur, err := p.col.Find(ctx, bson.M{"course_id": courseID, "mentors": mentorID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Enrollment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserDirectory resolves display data from the users and mentors collections
// owned by the account service.
type UserDirectory struct {
	users   *mongo.Collection
	mentors *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{
		users:   db.Collection(UsersCollection),
		mentors: db.Collection(MentorsCollection),
	}
}

func (d *UserDirectory) ResolveIdentity(ctx context.Context, id string) (*models.Profile, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", services.ErrInvalidIdentity, id)
	}

	lookups := []struct {
		col  *mongo.Collection
		role models.Role
	}{
		{d.users, models.RoleUser},
		{d.mentors, models.RoleMentor},
	}
	for _, l := range lookups {
		var p models.Profile
		err := l.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&p)
		if err == nil {
			p.ID = id
			p.Role = l.role
			return &p, nil
		}
		if err = notFound(err); err != services.ErrNotFound {
			return nil, err
		}
	}
	return nil, fmt.Errorf("identity %s: %w", id, services.ErrNotFound)
}
