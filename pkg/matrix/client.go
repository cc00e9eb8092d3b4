// Package matrix is a minimal client for the subset of the Matrix
// client-server API the platform needs to administer rooms: alias
// resolution, room creation, invites, kicks, and power levels.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const apiPrefix = "/_matrix/client/v3"

// Config holds client settings.
type Config struct {
	HomeserverURL  string
	AccessToken    string
	BotUserID      string
	RequestTimeout time.Duration
}

// Client talks to a single homeserver as the automation bot.
type Client struct {
	baseURL     string
	accessToken string
	botUserID   string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a homeserver client. Every request carries the bot's
// access token and is bounded by cfg.RequestTimeout in addition to the
// caller's context deadline.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.HomeserverURL, "/"),
		accessToken: cfg.AccessToken,
		botUserID:   cfg.BotUserID,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// BotUserID returns the fully-qualified user ID the client acts as.
func (c *Client) BotUserID() string { return c.botUserID }

// CreateRoomRequest is the body of POST /createRoom.
type CreateRoomRequest struct {
	Name                      string       `json:"name,omitempty"`
	Topic                     string       `json:"topic,omitempty"`
	RoomAliasName             string       `json:"room_alias_name,omitempty"` // alias localpart, no # or domain
	Preset                    string       `json:"preset,omitempty"`
	Visibility                string       `json:"visibility,omitempty"`
	Invite                    []string     `json:"invite,omitempty"`
	PowerLevelContentOverride *PowerLevels `json:"power_level_content_override,omitempty"`
}

// ResolveAlias asks the homeserver which room a full alias points at.
// Returns a homeserver Error with M_NOT_FOUND when the alias is unmapped.
func (c *Client) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var out struct {
		RoomID string `json:"room_id"`
	}
	path := apiPrefix + "/directory/room/" + url.PathEscape(alias)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if out.RoomID == "" {
		return "", &Error{StatusCode: http.StatusNotFound, Code: ErrCodeNotFound, Message: "alias resolved to empty room ID"}
	}
	return out.RoomID, nil
}

// CreateRoom creates a room and returns its opaque room ID. When the request
// names an alias localpart that is already taken, the homeserver rejects
// with M_ROOM_IN_USE; callers treat that as a concurrent create and resolve
// the alias instead.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error) {
	var out struct {
		RoomID string `json:"room_id"`
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/createRoom", req, &out); err != nil {
		return "", err
	}
	return out.RoomID, nil
}

// CreateRoomAlias maps a new full alias onto an existing room.
func (c *Client) CreateRoomAlias(ctx context.Context, alias, roomID string) error {
	body := map[string]string{"room_id": roomID}
	path := apiPrefix + "/directory/room/" + url.PathEscape(alias)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// SetCanonicalAlias repoints the room's canonical alias, keeping altAliases
// resolvable for in-flight references to the room's previous identity.
func (c *Client) SetCanonicalAlias(ctx context.Context, roomID, alias string, altAliases []string) error {
	body := map[string]any{"alias": alias}
	if len(altAliases) > 0 {
		body["alt_aliases"] = altAliases
	}
	path := fmt.Sprintf("%s/rooms/%s/state/m.room.canonical_alias", apiPrefix, url.PathEscape(roomID))
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// Invite invites a user to a room.
func (c *Client) Invite(ctx context.Context, roomID, userID string) error {
	body := map[string]string{"user_id": userID}
	path := fmt.Sprintf("%s/rooms/%s/invite", apiPrefix, url.PathEscape(roomID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// Kick removes a user from a room.
func (c *Client) Kick(ctx context.Context, roomID, userID, reason string) error {
	body := map[string]string{"user_id": userID}
	if reason != "" {
		body["reason"] = reason
	}
	path := fmt.Sprintf("%s/rooms/%s/kick", apiPrefix, url.PathEscape(roomID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// PowerLevels reads the room's current m.room.power_levels state.
func (c *Client) PowerLevels(ctx context.Context, roomID string) (*PowerLevels, error) {
	var out PowerLevels
	path := fmt.Sprintf("%s/rooms/%s/state/m.room.power_levels/", apiPrefix, url.PathEscape(roomID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetPowerLevels replaces the room's m.room.power_levels state. Callers must
// send back a full struct obtained from PowerLevels to avoid clobbering
// levels they did not intend to change.
func (c *Client) SetPowerLevels(ctx context.Context, roomID string, levels *PowerLevels) error {
	path := fmt.Sprintf("%s/rooms/%s/state/m.room.power_levels/", apiPrefix, url.PathEscape(roomID))
	return c.do(ctx, http.MethodPut, path, levels, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("homeserver request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		me := &Error{StatusCode: resp.StatusCode, Code: ErrCodeUnknown}
		if jsonErr := json.Unmarshal(raw, me); jsonErr != nil || me.Code == "" {
			me.Code = ErrCodeUnknown
			me.Message = strings.TrimSpace(string(raw))
		}
		c.logger.Debug("homeserver error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("errcode", me.Code),
		)
		return me
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
