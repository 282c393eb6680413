package models

// Role of a resolved identity.
type Role string

const (
	RoleUser   Role = "user"
	RoleMentor Role = "mentor"
)

// Profile is the display data of a user or mentor, owned by the external directory.
type Profile struct {
	ID        string `bson:"_id" json:"id"`
	Name      string `bson:"name" json:"name"`
	Email     string `bson:"email" json:"email,omitempty"`
	AvatarURL string `bson:"avatar_url" json:"avatar_url,omitempty"`
	Role      Role   `bson:"-" json:"role"`
}

// Enrollment is the provenance record the enrollment collaborator exposes.
type Enrollment struct {
	ID       string   `bson:"_id" json:"id"`
	CourseID string   `bson:"course_id" json:"course_id"`
	Learners []string `bson:"learners" json:"learners"`
	Mentors  []string `bson:"mentors" json:"mentors"`
}
