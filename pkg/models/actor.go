package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Actor records who created or last updated a record: either the system
// (public self-registration) or an internal user.
type Actor struct {
	userID uuid.UUID
	isUser bool
}

// SystemActor is the actor for writes with no authenticated caller.
func SystemActor() Actor { return Actor{} }

// UserActor is the actor for writes made by an internal user.
func UserActor(id uuid.UUID) Actor { return Actor{userID: id, isUser: true} }

// ActorFromNullable converts a nullable foreign key into an Actor.
func ActorFromNullable(id *uuid.UUID) Actor {
	if id == nil || *id == uuid.Nil {
		return SystemActor()
	}
	return UserActor(*id)
}

func (a Actor) IsSystem() bool { return !a.isUser }

// UserID returns the internal user id and true, or false for the system actor.
func (a Actor) UserID() (uuid.UUID, bool) { return a.userID, a.isUser }

// Nullable returns the foreign key value to persist.
func (a Actor) Nullable() *uuid.UUID {
	if !a.isUser {
		return nil
	}
	id := a.userID
	return &id
}

type actorJSON struct {
	Kind   string     `json:"kind"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
}

func (a Actor) MarshalJSON() ([]byte, error) {
	if !a.isUser {
		return json.Marshal(actorJSON{Kind: "system"})
	}
	return json.Marshal(actorJSON{Kind: "user", UserID: a.Nullable()})
}

func (a *Actor) UnmarshalJSON(b []byte) error {
	var v actorJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = ActorFromNullable(v.UserID)
	return nil
}
