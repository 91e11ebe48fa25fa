// Package room derives canonical room identifiers for direct and group chats.
package room

import (
	"fmt"

	"github.com/fathima-sithara/chatsync/internal/chaterr"
)

type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// ID is a canonical room identifier, e.g. "chat_3_7" or "group_12".
type ID string

// Direct returns the pairwise room id. Commutative: Direct(a,b) == Direct(b,a).
func Direct(selfID, peerID int) (ID, error) {
	if selfID <= 0 || peerID <= 0 {
		return "", chaterr.ErrInvalidParticipants
	}
	lo, hi := selfID, peerID
	if lo > hi {
		lo, hi = hi, lo
	}
	return ID(fmt.Sprintf("chat_%d_%d", lo, hi)), nil
}

// Group returns the room id for a group chat.
func Group(groupID int) (ID, error) {
	if groupID <= 0 {
		return "", chaterr.ErrInvalidParticipants
	}
	return ID(fmt.Sprintf("group_%d", groupID)), nil
}

// Resolve picks the direct room when peerID is set, else the group room.
func Resolve(selfID, peerID, groupID int) (ID, error) {
	if peerID > 0 {
		return Direct(selfID, peerID)
	}
	if groupID > 0 {
		return Group(groupID)
	}
	return "", chaterr.ErrInvalidParticipants
}

func (id ID) Kind() Kind {
	if len(id) > 6 && id[:6] == "group_" {
		return KindGroup
	}
	return KindDirect
}
