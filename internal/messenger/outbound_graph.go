package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"
)

// GraphOutbound sends messages through the Facebook Graph API.
type GraphOutbound struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewGraphOutbound(pageAccessToken string) *GraphOutbound {
	return &GraphOutbound{
		baseURL: "https://graph.facebook.com/v17.0",
		token:   pageAccessToken,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *GraphOutbound) Send(ctx context.Context, recipientID string, text string) error {
	if g.token == "" {
		return errors.New("messenger: page access token not configured")
	}

	body, err := json.Marshal(map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	})
	if err != nil {
		return err
	}

	endpoint := g.baseURL + "/me/messages?access_token=" + url.QueryEscape(g.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.New("messenger: graph api error: " + resp.Status + " body=" + string(respBody))
	}
	return nil
}
