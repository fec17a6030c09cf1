// Package roomapi talks to the room server's HTTP API: snapshots, joins and leaves.
package roomapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RaghhavDTurki/realtime-collab-editor/presence"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var Version = ""

var (
	ErrUnauthorized = errors.New("HTTP 401")
	ErrRoomNotFound = errors.New("HTTP 404")
)

// Client is a presence.SnapshotFetcher backed by the room server's HTTP API.
// One client can be shared among many rooms.
type Client struct {
	Client            *http.Client
	DestinationServer string
}

// NewClient returns a client for the server at baseURL whose requests are traced.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		DestinationServer: strings.TrimSuffix(baseURL, "/"),
	}
}

// MembersURL is the snapshot endpoint for a room.
func (c *Client) MembersURL(roomID string) string {
	return c.DestinationServer + "/api/rooms/" + url.PathEscape(roomID) + "/members"
}

// FetchMembers returns ErrRoomNotFound or ErrUnauthorized (wrapped) for those statuses.
func (c *Client) FetchMembers(ctx context.Context, roomID string) (*presence.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.MembersURL(roomID), nil)
	if err != nil {
		return nil, fmt.Errorf("FetchMembers: NewRequest failed: %w", err)
	}
	req.Header.Set("User-Agent", "collab-presence-"+Version)
	req.Header.Set("Accept", "application/json")
	res, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FetchMembers: request failed: %w", err)
	}
	defer res.Body.Close()
	if err = checkStatus(res, roomID); err != nil {
		return nil, fmt.Errorf("FetchMembers: %w", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("FetchMembers: failed to read body: %w", err)
	}
	return parseSnapshot(body)
}

// Join adds a member called name to the room, creating the room if needed.
func (c *Client) Join(ctx context.Context, roomID, name string) (rec wire.MemberRecord, err error) {
	reqBody, err := sjson.SetBytes([]byte(`{}`), "name", name)
	if err != nil {
		return rec, fmt.Errorf("Join: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.MembersURL(roomID), bytes.NewReader(reqBody))
	if err != nil {
		return rec, fmt.Errorf("Join: NewRequest failed: %w", err)
	}
	req.Header.Set("User-Agent", "collab-presence-"+Version)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.Client.Do(req)
	if err != nil {
		return rec, fmt.Errorf("Join: request failed: %w", err)
	}
	defer res.Body.Close()
	if err = checkStatus(res, roomID); err != nil {
		return rec, fmt.Errorf("Join: %w", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return rec, fmt.Errorf("Join: failed to read body: %w", err)
	}
	member := gjson.GetBytes(body, "member")
	if !member.Get("memberId").Exists() {
		return rec, fmt.Errorf("Join: response is missing member.memberId: %s", body)
	}
	return wire.MemberRecord{
		MemberID: member.Get("memberId").Int(),
		UserID:   member.Get("id").Str,
		Name:     member.Get("name").Str,
	}, nil
}

// Leave removes the member from the room. Leaving twice is not an error.
func (c *Client) Leave(ctx context.Context, roomID string, memberID int64) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", c.MembersURL(roomID)+"/"+strconv.FormatInt(memberID, 10), nil)
	if err != nil {
		return fmt.Errorf("Leave: NewRequest failed: %w", err)
	}
	req.Header.Set("User-Agent", "collab-presence-"+Version)
	res, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("Leave: request failed: %w", err)
	}
	defer res.Body.Close()
	if err = checkStatus(res, roomID); err != nil {
		return fmt.Errorf("Leave: %w", err)
	}
	return nil
}

func checkStatus(res *http.Response, roomID string) error {
	switch res.StatusCode {
	case 200:
		return nil
	case 401:
		return fmt.Errorf("%s: %w", roomID, ErrUnauthorized)
	case 404:
		return fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	default:
		return fmt.Errorf("response returned %s", res.Status)
	}
}

func parseSnapshot(body []byte) (*presence.Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("FetchMembers: response body is not JSON")
	}
	parsed := gjson.ParseBytes(body)
	version := parsed.Get("version")
	if version.Type != gjson.Number {
		return nil, fmt.Errorf("FetchMembers: response is missing a numeric version")
	}
	snapshot := &presence.Snapshot{
		Version: version.Int(),
	}
	members := parsed.Get("members").Array()
	snapshot.Members = make([]wire.MemberRecord, 0, len(members))
	for _, m := range members {
		if !m.Get("memberId").Exists() {
			return nil, fmt.Errorf("FetchMembers: member without memberId: %s", m.Raw)
		}
		snapshot.Members = append(snapshot.Members, wire.MemberRecord{
			MemberID: m.Get("memberId").Int(),
			UserID:   m.Get("id").Str,
			Name:     m.Get("name").Str,
		})
	}
	return snapshot, nil
}
