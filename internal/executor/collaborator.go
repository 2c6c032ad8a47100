package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/domain"
)

// Collaborator is the dispatch target named by spec.md §4.F step
// "Dispatch by action_type to the collaborator (§6)". Every action type
// ultimately resolves to an outbound HTTP call; HTTPCollaborator is the
// concrete implementation, grounded on the other_examples connector-dispatch
// pattern (a per-action-type endpoint resolved from a registry, POSTed with
// the interpolated config as the JSON body).
type Collaborator interface {
	Dispatch(ctx context.Context, actionType domain.ActionType, config map[string]any) (map[string]any, error)
}

// HTTPCollaborator dispatches every action type as a JSON POST. send_webhook
// and rollback actions use the URL named in their own config
// (config["url"]); every other action type uses the fixed endpoint
// registered for it, since those integrations (email, SMS, CRM, task,
// workflow, custom) are operator-configured collaborator services rather
// than a URL the trigger author supplies per action.
type HTTPCollaborator struct {
	client    *http.Client
	endpoints map[domain.ActionType]string
	userAgent string
}

// NewHTTPCollaborator builds a collaborator dispatching to endpoints (keyed
// by action type) over client.
func NewHTTPCollaborator(client *http.Client, endpoints map[domain.ActionType]string) *HTTPCollaborator {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCollaborator{client: client, endpoints: endpoints, userAgent: "automation-core-Executor/1.0"}
}

func (c *HTTPCollaborator) Dispatch(ctx context.Context, actionType domain.ActionType, config map[string]any) (map[string]any, error) {
	url, ok := config["url"].(string)
	if actionType != domain.ActionSendWebhook && actionType != domain.ActionRollback && !ok {
		url, ok = c.endpoints[actionType]
	}
	if !ok || url == "" {
		return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("no endpoint configured for action type %q", actionType))
	}

	body, err := json.Marshal(config)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal action config", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "build action request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Action-Type", string(actionType))
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.New(apperr.KindTimeout, "action dispatch timed out")
		}
		return nil, apperr.Wrap(apperr.KindTransport, "action dispatch request failed", err)
	}
	defer resp.Body.Close()

	var parsed map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return parsed, nil
	}

	if actionType == domain.ActionUpdateCRM && resp.StatusCode == http.StatusUnauthorized {
		if tokenExpired, _ := parsed["token_expired"].(bool); tokenExpired {
			return nil, apperr.TokenExpired("crm access token expired")
		}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, &apperr.Error{
			Kind:       apperr.KindIntegration,
			Message:    fmt.Sprintf("action dispatch rejected with status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	return nil, &apperr.Error{
		Kind:       apperr.KindTransport,
		Message:    fmt.Sprintf("action dispatch failed with status %d", resp.StatusCode),
		StatusCode: resp.StatusCode,
	}
}

var _ Collaborator = (*HTTPCollaborator)(nil)
