package user

import (
	"errors"
	"math"
	"strings"
	"time"
)

// User is the profile document stored under users/{id}.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Role         Role      `json:"role"`
	IsOnline     bool      `json:"isOnline"`
	IsBlocked    bool      `json:"isBlocked"`
	VehiclePlate *string   `json:"vehiclePlate,omitempty"`
	PayoutKey    *string   `json:"payoutKey,omitempty"`
	Avatar       *string   `json:"avatar,omitempty"`
	Rating       *float64  `json:"rating,omitempty"`
	RatingCount  *int      `json:"ratingCount,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RoleGrant overrides a user's stored role. Stored under roleGrants/{userId}.
type RoleGrant struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name,omitempty"`
	Role      Role      `json:"role"`
	GrantedBy string    `json:"grantedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	ErrNameRequired   = errors.New("name is required")
	ErrUserIDRequired = errors.New("user id is required")
	ErrPlateRequired  = errors.New("drivers must provide a vehicle plate")
)

// Validate checks invariants of the User profile.
func (user *User) Validate() error {
	if strings.TrimSpace(user.ID) == "" {
		return ErrUserIDRequired
	}
	if strings.TrimSpace(user.Name) == "" {
		return ErrNameRequired
	}
	if !user.Role.Valid() {
		return ErrInvalidRole
	}
	if user.Role.IsDriver() && (user.VehiclePlate == nil || strings.TrimSpace(*user.VehiclePlate) == "") {
		return ErrPlateRequired
	}
	return nil
}

// Validate checks invariants of the RoleGrant.
func (grant *RoleGrant) Validate() error {
	if strings.TrimSpace(grant.UserID) == "" {
		return ErrUserIDRequired
	}
	if !grant.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// AddRating folds a new score into the rating aggregate.
func (user *User) AddRating(score int) {
	count := 0
	avg := 0.0
	if user.RatingCount != nil {
		count = *user.RatingCount
	}
	if user.Rating != nil {
		avg = *user.Rating
	}
	next := (avg*float64(count) + float64(score)) / float64(count+1)
	next = math.Round(next*100) / 100
	count++
	user.Rating = &next
	user.RatingCount = &count
}

// Actor is the resolved identity behind a request or session.
type Actor struct {
	ID      string
	Name    string
	Role    Role
	Blocked bool
	Profile *User
}

// EffectiveRole returns the grant's role if present, else the stored role.
func EffectiveRole(profile *User, grant *RoleGrant) Role {
	if grant != nil && grant.Role.Valid() {
		return grant.Role
	}
	if profile != nil {
		return profile.Role
	}
	return ""
}

// NewActor combines a profile and an optional grant into an Actor.
func NewActor(profile *User, grant *RoleGrant) Actor {
	return Actor{
		ID:      profile.ID,
		Name:    profile.Name,
		Role:    EffectiveRole(profile, grant),
		Blocked: profile.IsBlocked,
		Profile: profile,
	}
}
