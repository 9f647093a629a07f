// Package rest talks to the meeting backend's HTTP API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"github.com/dkeye/meetlink/internal/domain"
)

const DefaultTimeout = 10 * time.Second

var ErrStatus = errors.New("unexpected status")

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements core.MeetingAPI.
type Client struct {
	base    string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
	log     zerolog.Logger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		timeout: opts.Timeout,
		http: &fasthttp.Client{
			Name:         "meetlink",
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		log: log.With().Str("module", "rest").Logger(),
	}
}

func (c *Client) meetingURL(room domain.RoomID, action string) string {
	return c.base + "/meetings/" + url.PathEscape(string(room)) + "/" + action
}

// Participants fetches the participant records of room.
func (c *Client) Participants(ctx context.Context, room domain.RoomID) ([]domain.Participant, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.meetingURL(room, "participants"))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := c.do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("participants of %s: %w", room, err)
	}
	var ps []domain.Participant
	if err := json.Unmarshal(resp.Body(), &ps); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	c.log.Debug().Str("room", string(room)).Int("count", len(ps)).Msg("participants fetched")
	return ps, nil
}

// Leave acknowledges the departure from room.
func (c *Client) Leave(ctx context.Context, room domain.RoomID) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.meetingURL(room, "leave"))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBodyString("{}")

	if err := c.do(ctx, req, resp); err != nil {
		return fmt.Errorf("leave %s: %w", room, err)
	}
	c.log.Debug().Str("room", string(room)).Msg("leave acknowledged")
	return nil
}

func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return err
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("%w: %d", ErrStatus, code)
	}
	return nil
}
