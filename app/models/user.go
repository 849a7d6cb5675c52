package models

import (
	"time"

	"github.com/shashiranjanraj/vidorder/pkg/auth"
)

// User is an account that can place orders. Admins are seeded, never
// self-registered.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	Name      string    `gorm:"size:255;not null" bson:"name" json:"name"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" bson:"email" json:"email"`
	Password  string    `gorm:"size:255;not null" bson:"password" json:"-"` // bcrypt hash
	Role      string    `gorm:"size:20;not null;default:user" bson:"role" json:"role"`
	CreatedAt time.Time `gorm:"index" bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Identity is the public view of u carried through authenticated requests.
func (u User) Identity() auth.Identity {
	return auth.Identity{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Owner is the slice of a user joined into admin order listings.
type Owner struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
