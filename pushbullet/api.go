package pushbullet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultAPIURL    = "https://api.pushbullet.com/v2"
	DefaultStreamURL = "wss://stream.pushbullet.com/websocket"
)

type User struct {
	Iden  string `json:"iden"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Push struct {
	Iden        string  `json:"iden,omitempty"`
	GUID        string  `json:"guid,omitempty"`
	Type        string  `json:"type"`
	Title       string  `json:"title,omitempty"`
	Body        string  `json:"body,omitempty"`
	URL         string  `json:"url,omitempty"`
	FileURL     string  `json:"file_url,omitempty"`
	Email       string  `json:"email,omitempty"` // recipient
	Created     float64 `json:"created,omitempty"`
	Modified    float64 `json:"modified,omitempty"`
	Active      bool    `json:"active,omitempty"`
	Dismissed   bool    `json:"dismissed,omitempty"`
	Direction   string  `json:"direction,omitempty"`
	SenderName  string  `json:"sender_name,omitempty"`
	SenderEmail string  `json:"sender_email,omitempty"`

	// Mirrored notifications only.
	ApplicationName string `json:"application_name,omitempty"`
}

// Time returns the creation time of the push.
func (p *Push) Time() time.Time {
	return floatTime(p.Created)
}

func floatTime(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Client calls the Pushbullet REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Access-Token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e apiError
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error.Message != "" {
			return fmt.Errorf("pushbullet: %s: %s", e.Error.Type, e.Error.Message)
		}
		return fmt.Errorf("pushbullet: %s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pushbullet: invalid response: %w", err)
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Pushes returns the active pushes modified after the given time, newest
// first. A zero modifiedAfter returns the latest pushes.
func (c *Client) Pushes(ctx context.Context, modifiedAfter float64, limit int) ([]Push, error) {
	q := url.Values{}
	q.Set("active", "true")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if modifiedAfter > 0 {
		q.Set("modified_after", strconv.FormatFloat(modifiedAfter, 'f', -1, 64))
	}
	var resp struct {
		Pushes []Push `json:"pushes"`
	}
	if err := c.do(ctx, http.MethodGet, "/pushes?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pushes, nil
}

// CreatePush sends a push. Pushes with the GUID of an earlier push are
// ignored by the server.
func (c *Client) CreatePush(ctx context.Context, p Push) (*Push, error) {
	var created Push
	if err := c.do(ctx, http.MethodPost, "/pushes", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}
