package user

import (
	"encoding/json"
)

// User is the profile snapshot bound to the current session.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`

	// Onboarding profile fields. These arrive incrementally during the
	// first-run flow, so every mutation merges rather than replaces.
	Age                    int    `json:"age,omitempty"`
	Gender                 string `json:"gender,omitempty"`
	LookingFor             string `json:"lookingFor,omitempty"`
	PictureURL             string `json:"pictureUrl,omitempty"`
	HasCompletedOnboarding bool   `json:"hasCompletedOnboarding"`
}

// Patch is a partial update to a User. Nil fields are left untouched by
// Apply, so an operation that only knows about one field can never
// clobber the rest of the record.
type Patch struct {
	Username               *string `json:"username,omitempty"`
	Age                    *int    `json:"age,omitempty"`
	Gender                 *string `json:"gender,omitempty"`
	LookingFor             *string `json:"lookingFor,omitempty"`
	PictureURL             *string `json:"pictureUrl,omitempty"`
	HasCompletedOnboarding *bool   `json:"hasCompletedOnboarding,omitempty"`
}

// IsZero reports whether the patch carries no changes.
func (p *Patch) IsZero() bool {
	return p.Username == nil && p.Age == nil && p.Gender == nil &&
		p.LookingFor == nil && p.PictureURL == nil && p.HasCompletedOnboarding == nil
}

// Apply merges the patch into the user, field by field.
func (u *User) Apply(p *Patch) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Age != nil {
		u.Age = *p.Age
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
	if p.LookingFor != nil {
		u.LookingFor = *p.LookingFor
	}
	if p.PictureURL != nil {
		u.PictureURL = *p.PictureURL
	}
	if p.HasCompletedOnboarding != nil {
		u.HasCompletedOnboarding = *p.HasCompletedOnboarding
	}
}

// Merge copies non-empty fields from other into u. Used when a fresh
// profile fetch should refresh the cached record without discarding
// fields the server response omitted.
func (u *User) Merge(other *User) {
	if other == nil {
		return
	}
	if other.ID != "" {
		u.ID = other.ID
	}
	if other.Username != "" {
		u.Username = other.Username
	}
	if other.Email != "" {
		u.Email = other.Email
	}
	if len(other.Roles) > 0 {
		u.Roles = other.Roles
	}
	if other.Age != 0 {
		u.Age = other.Age
	}
	if other.Gender != "" {
		u.Gender = other.Gender
	}
	if other.LookingFor != "" {
		u.LookingFor = other.LookingFor
	}
	if other.PictureURL != "" {
		u.PictureURL = other.PictureURL
	}
	if other.HasCompletedOnboarding {
		u.HasCompletedOnboarding = true
	}
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.Roles != nil {
		clone.Roles = append([]string(nil), u.Roles...)
	}
	return &clone
}

// ToJSON serializes the user for the credential store.
func (u *User) ToJSON() (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Parse deserializes a stored user record.
func Parse(data string) (*User, error) {
	var u User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, err
	}
	return &u, nil
}
