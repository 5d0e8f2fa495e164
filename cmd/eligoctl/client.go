package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/zegl/eligo/internal/auth"
)

const tokenTTL = time.Hour

type client struct {
	http   *resty.Client
	user   string
	secret string
}

func newClient(api, user, secret string) *client {
	return &client{
		http:   resty.New().SetBaseURL(api).SetTimeout(30 * time.Second),
		user:   user,
		secret: secret,
	}
}

func (c *client) request() (*resty.Request, error) {
	req := c.http.R()
	switch {
	case c.secret != "":
		if c.user == "" {
			return nil, fmt.Errorf("--user required to mint a token")
		}
		tok, err := auth.NewToken(c.secret, c.user, tokenTTL)
		if err != nil {
			return nil, err
		}
		req.SetAuthToken(tok)
	case c.user != "":
		req.SetHeader(auth.HeaderUserID, c.user)
	}
	return req, nil
}

func copyBody(resp *resty.Response, want int, out io.Writer) error {
	if resp.StatusCode() != want {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	_, err := fmt.Fprintln(out, resp.String())
	return err
}

func runHealth(c *client, out io.Writer) error {
	resp, err := c.http.R().Get("/api/health")
	if err != nil {
		return err
	}
	return copyBody(resp, http.StatusOK, out)
}

func runChanges(c *client, since int64, out io.Writer) error {
	if since < 0 {
		return fmt.Errorf("--since cannot be negative")
	}
	req, err := c.request()
	if err != nil {
		return err
	}
	resp, err := req.SetQueryParam("lastSynced", fmt.Sprint(since)).Get("/api/changes")
	if err != nil {
		return err
	}
	return copyBody(resp, http.StatusOK, out)
}

type action struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId"`
	Payload   actionPayload `json:"payload"`
}

type actionPayload struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields,omitempty"`
	Time   int64                  `json:"time,omitempty"`
}

func runAct(c *client, typ, id, fieldsJSON string, at int64, out io.Writer) error {
	if typ == "" {
		return fmt.Errorf("--type required")
	}
	if id == "" {
		id = uuid.New().String()
	}
	var fields map[string]interface{}
	if fieldsJSON != "" {
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return fmt.Errorf("fields must be a JSON object: %w", err)
		}
	}
	if at == 0 {
		at = time.Now().UnixMilli()
	}
	req, err := c.request()
	if err != nil {
		return err
	}
	resp, err := req.SetBody(action{
		Type:      typ,
		RequestID: uuid.New().String(),
		Payload:   actionPayload{ID: id, Fields: fields, Time: at},
	}).Post("/api/actions")
	if err != nil {
		return err
	}
	return copyBody(resp, http.StatusOK, out)
}

func runInvitation(c *client, invitationID string, out io.Writer) error {
	req, err := c.request()
	if err != nil {
		return err
	}
	resp, err := req.SetPathParam("invitationId", invitationID).Get("/api/invitations/{invitationId}")
	if err != nil {
		return err
	}
	return copyBody(resp, http.StatusOK, out)
}
