// ABOUTME: Outbound Bot Framework connector REST client
// ABOUTME: Sends replies and proactive activities to a conversation's service URL

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/2389/teams-gateway/internal/activity"
)

const maxResponseBody = 1 << 20

// ResourceResponse is the connector's answer to a posted activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// Client posts activities to the Bot Framework connector service.
type Client struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
}

// New creates a connector client. A nil httpClient gets a 30s default; a nil
// tokenSource sends requests without authorization.
func New(httpClient *http.Client, tokenSource oauth2.TokenSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient, tokenSource: tokenSource}
}

// SendToConversation posts act into the referenced conversation. The routing
// fields of act are filled from ref.
func (c *Client) SendToConversation(ctx context.Context, ref activity.ConversationReference, act *activity.Activity) (*ResourceResponse, error) {
	if act == nil {
		return nil, errors.New("connector: activity is nil")
	}
	activity.ApplyConversationReference(act, ref)

	endpoint, err := activitiesURL(act.ServiceURL, act.ConversationID(), "")
	if err != nil {
		return nil, err
	}
	return c.post(ctx, endpoint, act)
}

// ReplyToActivity answers incoming with reply in the same conversation.
func (c *Client) ReplyToActivity(ctx context.Context, incoming, reply *activity.Activity) (*ResourceResponse, error) {
	if incoming == nil || reply == nil {
		return nil, errors.New("connector: activity is nil")
	}
	activity.ApplyConversationReference(reply, activity.GetConversationReference(incoming))
	reply.ReplyToID = incoming.ID

	endpoint, err := activitiesURL(reply.ServiceURL, reply.ConversationID(), incoming.ID)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, endpoint, reply)
}

// activitiesURL builds {serviceUrl}/v3/conversations/{id}/activities[/{replyToId}].
func activitiesURL(serviceURL, conversationID, replyToID string) (string, error) {
	if serviceURL == "" {
		return "", errors.New("connector: service url is empty")
	}
	if conversationID == "" {
		return "", errors.New("connector: conversation id is empty")
	}
	if _, err := url.Parse(serviceURL); err != nil {
		return "", fmt.Errorf("connector: invalid service url: %w", err)
	}

	endpoint := strings.TrimRight(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	if replyToID != "" {
		endpoint += "/" + url.PathEscape(replyToID)
	}
	return endpoint, nil
}

func (c *Client) post(ctx context.Context, endpoint string, act *activity.Activity) (*ResourceResponse, error) {
	body, err := json.Marshal(act)
	if err != nil {
		return nil, fmt.Errorf("connector: marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("connector: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokenSource != nil {
		token, err := c.tokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("connector: acquiring token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connector: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("connector: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(resp.StatusCode, raw)
	}

	var rr ResourceResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &rr); err != nil {
			return nil, fmt.Errorf("connector: decode response: %w", err)
		}
	}
	return &rr, nil
}
