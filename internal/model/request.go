package model

import (
	"time"

	"github.com/jamsession/api/internal/role"
)

// CreateJamRequest is the payload for POST /api/jams
type CreateJamRequest struct {
	Title         string    `json:"title" validate:"required,max=200"`
	VenueLocation string    `json:"venueLocation" validate:"required,max=200"`
	BasedOnSong   string    `json:"basedOnSong" validate:"required,max=200"`
	StartTime     time.Time `json:"startTime" validate:"required"`
	EndTime       time.Time `json:"endTime" validate:"required"`
	RequiredRoles []string  `json:"requiredRoles" validate:"required,min=1,dive,jamrole"`
}

// JoinJamRequest is the payload for POST /api/jams/:jamId/join
type JoinJamRequest struct {
	JoinType   JoinType `json:"joinType" validate:"required,oneof=PLAYER ATTENDEE"`
	ChosenRole string   `json:"chosenRole" validate:"required_if=JoinType PLAYER"`
}

// RegisterRequest is the payload for POST /auth/register
type RegisterRequest struct {
	Username string   `json:"userName" validate:"required,min=3,max=64"`
	Password string   `json:"password" validate:"required,min=8,max=72"`
	Roles    []string `json:"roles" validate:"required,min=1,dive,jamrole"`
}

// LoginRequest is the payload for POST /auth/login
type LoginRequest struct {
	Username string `json:"userName" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries an access token
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        UserResponse `json:"user"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID         int64       `json:"id"`
	Username   string      `json:"userName"`
	Roles      []role.Role `json:"roles"`
	PastJamIDs []int64     `json:"pastJamIds"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// NewUserResponse drops credential fields.
func NewUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Roles:      u.Roles,
		PastJamIDs: u.PastJamIDs,
		CreatedAt:  u.CreatedAt,
	}
}

// JamDetailResponse is a jam as seen by one viewer
type JamDetailResponse struct {
	Jam                 *Jam        `json:"jam"`
	IsHost              bool        `json:"isHost"`
	HasJoinedAsPlayer   bool        `json:"hasJoinedAsPlayer"`
	HasJoinedAsAttendee bool        `json:"hasJoinedAsAttendee"`
	PossibleRoles       []role.Role `json:"possibleRoles"`
	CanJoinAsPlayer     bool        `json:"canJoinAsPlayer"`
}

// JamListResponse wraps a listing
type JamListResponse struct {
	Status JamStatus `json:"status"`
	Jams   []Jam     `json:"jams"`
}

// ValidationResponse is returned for dry-run requests that pass every guard
type ValidationResponse struct {
	Valid  bool   `json:"valid"`
	Action string `json:"action"`
}
