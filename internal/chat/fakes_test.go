package chat

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/convene-hq/backend/internal/models"
	"github.com/convene-hq/backend/pkg/matrix"
)

func notFoundErr() *matrix.Error {
	return &matrix.Error{StatusCode: http.StatusNotFound, Code: matrix.ErrCodeNotFound, Message: "not found"}
}

func forbiddenErr(msg string) *matrix.Error {
	return &matrix.Error{StatusCode: http.StatusForbidden, Code: matrix.ErrCodeForbidden, Message: msg}
}

func serverErr() *matrix.Error {
	return &matrix.Error{StatusCode: http.StatusInternalServerError, Code: matrix.ErrCodeUnknown, Message: "internal server error"}
}

// fakeNetwork is an in-memory homeserver: alias directory, per-room power
// levels and membership, with injectable per-operation failures.
type fakeNetwork struct {
	mu sync.Mutex

	aliases  map[string]string              // alias -> room ID
	levels   map[string]*matrix.PowerLevels // room ID -> power levels
	memberOf map[string]map[string]bool     // room ID -> user ID -> joined

	resolveErr      error
	resolveMissOnce bool // next ResolveAlias reports not-found, then normal
	createErr       error
	inviteErr       map[string]error // user ID -> error
	kickErr         map[string]error // user ID -> error
	readPLErr       error
	writePLErr      error
	aliasErr        error
	canonicalErr    error

	// When set, Invite rejects unless this user's power level in the room
	// is at least inviteMinLevel, which lets tests exercise the heal path
	// deterministically: elevation flips the outcome.
	enforceFor     string
	inviteMinLevel int

	createCalls int
	inviteCalls []string
	kickCalls   []string
	nextRoom    int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		aliases:   map[string]string{},
		levels:    map[string]*matrix.PowerLevels{},
		memberOf:  map[string]map[string]bool{},
		inviteErr: map[string]error{},
		kickErr:   map[string]error{},
	}
}

// addRoom registers an existing room under an alias with the given levels.
func (f *fakeNetwork) addRoom(alias string, levels *matrix.PowerLevels) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRoom++
	roomID := fmt.Sprintf("!room-%d:chat.test", f.nextRoom)
	f.aliases[alias] = roomID
	f.levels[roomID] = levels
	f.memberOf[roomID] = map[string]bool{}
	return roomID
}

func (f *fakeNetwork) ResolveAlias(_ context.Context, alias string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	if f.resolveMissOnce {
		f.resolveMissOnce = false
		return "", notFoundErr()
	}
	roomID, ok := f.aliases[alias]
	if !ok {
		return "", notFoundErr()
	}
	return roomID, nil
}

func (f *fakeNetwork) CreateRoom(_ context.Context, req matrix.CreateRoomRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	alias := "#" + req.RoomAliasName + ":chat.test"
	if _, taken := f.aliases[alias]; taken {
		return "", &matrix.Error{StatusCode: http.StatusBadRequest, Code: matrix.ErrCodeRoomInUse, Message: "Room alias already taken"}
	}
	f.nextRoom++
	roomID := fmt.Sprintf("!room-%d:chat.test", f.nextRoom)
	f.aliases[alias] = roomID
	f.memberOf[roomID] = map[string]bool{}
	if req.PowerLevelContentOverride != nil {
		f.levels[roomID] = req.PowerLevelContentOverride
	} else {
		f.levels[roomID] = &matrix.PowerLevels{}
	}
	return roomID, nil
}

func (f *fakeNetwork) CreateRoomAlias(_ context.Context, alias, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.aliasErr != nil {
		return f.aliasErr
	}
	if existing, taken := f.aliases[alias]; taken && existing != roomID {
		return &matrix.Error{StatusCode: http.StatusConflict, Code: matrix.ErrCodeRoomInUse, Message: "Room alias already taken"}
	}
	f.aliases[alias] = roomID
	return nil
}

func (f *fakeNetwork) SetCanonicalAlias(_ context.Context, roomID, alias string, altAliases []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canonicalErr
}

func (f *fakeNetwork) Invite(_ context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inviteCalls = append(f.inviteCalls, userID)
	if err, ok := f.inviteErr[userID]; ok {
		return err
	}
	if f.enforceFor != "" && f.levels[roomID].UserLevel(f.enforceFor) < f.inviteMinLevel {
		return forbiddenErr("you do not have permission to invite")
	}
	if members, ok := f.memberOf[roomID]; ok {
		if members[userID] {
			return forbiddenErr("user is already in the room")
		}
		members[userID] = true
	}
	return nil
}

func (f *fakeNetwork) Kick(_ context.Context, roomID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kickCalls = append(f.kickCalls, userID)
	if err, ok := f.kickErr[userID]; ok {
		return err
	}
	members, ok := f.memberOf[roomID]
	if !ok || !members[userID] {
		return forbiddenErr("user is not in the room")
	}
	delete(members, userID)
	return nil
}

func (f *fakeNetwork) PowerLevels(_ context.Context, roomID string) (*matrix.PowerLevels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readPLErr != nil {
		return nil, f.readPLErr
	}
	levels, ok := f.levels[roomID]
	if !ok {
		return nil, notFoundErr()
	}
	// Copy so callers mutating the result don't change room state until
	// they write it back.
	out := *levels
	out.Users = make(map[string]int, len(levels.Users))
	for k, v := range levels.Users {
		out.Users[k] = v
	}
	return &out, nil
}

func (f *fakeNetwork) SetPowerLevels(_ context.Context, roomID string, levels *matrix.PowerLevels) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writePLErr != nil {
		return f.writePLErr
	}
	f.levels[roomID] = levels
	return nil
}

// fakeRecords is an in-memory RecordStore.
type fakeRecords struct {
	mu   sync.Mutex
	rows map[string]*models.RoomRecord
	err  error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: map[string]*models.RoomRecord{}}
}

func recordKey(tenantID uuid.UUID, entityType models.EntityType, slug string) string {
	return fmt.Sprintf("%s/%s/%s", tenantID, entityType, slug)
}

func (f *fakeRecords) Get(_ context.Context, tenantID uuid.UUID, entityType models.EntityType, slug string) (*models.RoomRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.rows[recordKey(tenantID, entityType, slug)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecords) Save(_ context.Context, rec *models.RoomRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *rec
	f.rows[recordKey(rec.TenantID, rec.EntityType, rec.EntitySlug)] = &cp
	return nil
}

func (f *fakeRecords) Rename(_ context.Context, tenantID uuid.UUID, entityType models.EntityType, oldSlug, newSlug, newAlias string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	rec, ok := f.rows[recordKey(tenantID, entityType, oldSlug)]
	if !ok {
		return nil
	}
	delete(f.rows, recordKey(tenantID, entityType, oldSlug))
	rec.EntitySlug = newSlug
	rec.CanonicalAlias = newAlias
	f.rows[recordKey(tenantID, entityType, newSlug)] = rec
	return nil
}

func (f *fakeRecords) Delete(_ context.Context, tenantID uuid.UUID, entityType models.EntityType, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.rows, recordKey(tenantID, entityType, slug))
	return nil
}

// fakeEntities is an in-memory EntityChecker.
type fakeEntities struct {
	existing map[string]bool
	err      error
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{existing: map[string]bool{}}
}

func (f *fakeEntities) add(tenantID uuid.UUID, entityType models.EntityType, slug string) {
	f.existing[recordKey(tenantID, entityType, slug)] = true
}

func (f *fakeEntities) Exists(_ context.Context, tenantID uuid.UUID, entityType models.EntityType, slug string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.existing[recordKey(tenantID, entityType, slug)], nil
}
