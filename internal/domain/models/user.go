// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User statuses.
const (
	UserActive  = "active"
	UserDeleted = "deleted"
)

// User is an account that can sign in. Role here is the user's primary
// (highest) role and is what the session carries; per-unit roles live in
// memberships and are what authorization actually checks.
type User struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"-"`
	Email      string             `bson:"email" json:"email"`
	EmailCI    string             `bson:"email_ci" json:"-"`

	// PasswordHash is a bcrypt hash; empty means the account cannot
	// sign in with a password.
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`

	Role   string `bson:"role" json:"role"`
	Status string `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
