package matrix

// Defaults the homeserver applies when a field is absent from the
// m.room.power_levels event.
const (
	DefaultUserLevel   = 0
	DefaultInviteLevel = 0
	DefaultKickLevel   = 50
	DefaultStateLevel  = 50
)

// PowerLevels is a typed representation of the m.room.power_levels state
// event content, for read-modify-write: fetch with Client.PowerLevels,
// adjust with SetUserLevel, send back with Client.SetPowerLevels.
//
// Pointer-to-int fields distinguish "not set" (nil, omitted from JSON) from
// "explicitly set to 0", so untouched fields keep their server defaults.
type PowerLevels struct {
	Users         map[string]int `json:"users,omitempty"`
	UsersDefault  *int           `json:"users_default,omitempty"`
	Events        map[string]int `json:"events,omitempty"`
	EventsDefault *int           `json:"events_default,omitempty"`
	StateDefault  *int           `json:"state_default,omitempty"`
	Invite        *int           `json:"invite,omitempty"`
	Ban           *int           `json:"ban,omitempty"`
	Kick          *int           `json:"kick,omitempty"`
	Redact        *int           `json:"redact,omitempty"`
	Notifications map[string]int `json:"notifications,omitempty"`
}

// UserLevel returns the effective power level of a user in the room.
func (p *PowerLevels) UserLevel(userID string) int {
	if p == nil {
		return DefaultUserLevel
	}
	if level, ok := p.Users[userID]; ok {
		return level
	}
	if p.UsersDefault != nil {
		return *p.UsersDefault
	}
	return DefaultUserLevel
}

// SetUserLevel sets the power level for a user ID, initializing the Users
// map if needed.
func (p *PowerLevels) SetUserLevel(userID string, level int) {
	if p.Users == nil {
		p.Users = make(map[string]int)
	}
	p.Users[userID] = level
}

// InviteLevel returns the level required to invite into the room.
func (p *PowerLevels) InviteLevel() int {
	if p != nil && p.Invite != nil {
		return *p.Invite
	}
	return DefaultInviteLevel
}

// KickLevel returns the level required to remove a member from the room.
func (p *PowerLevels) KickLevel() int {
	if p != nil && p.Kick != nil {
		return *p.Kick
	}
	return DefaultKickLevel
}
