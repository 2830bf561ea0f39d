package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"school_messenger/internal/domain"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

// TokenSource supplies the current bearer credential, or "" when the user
// is logged out. The same source feeds HTTP fetches and the live channel
// handshake.
type TokenSource func() string

// API is the remote-fetch collaborator: paginated history and group
// listings over HTTP. It is never a push source; live messages arrive
// through the Channel.
type API struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	log     logger.Logger
}

func NewAPI(baseURL string, token TokenSource, log logger.Logger) *API {
	return &API{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		token:   token,
		log:     log,
	}
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

// GroupMessages fetches one page of a group's history, newest first. An
// empty cursor means the latest page; otherwise the page descends from the
// cursor sort key inclusive.
func (a *API) GroupMessages(ctx context.Context, groupToken string, limit int, cursor string) ([]domain.Message, error) {
	query := url.Values{}
	query.Set("group", groupToken)
	query.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var resp messagesResponse
	if err := a.get(ctx, "/api/v1/messages", query, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

type groupsResponse struct {
	Groups []domain.GroupSummary `json:"groups"`
}

func (a *API) Groups(ctx context.Context, sortBy string, page int) ([]domain.GroupSummary, error) {
	query := url.Values{}
	query.Set("sort", sortBy)
	query.Set("page", strconv.Itoa(page))

	var resp groupsResponse
	if err := a.get(ctx, "/api/v1/groups", query, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

func (a *API) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrRemoteUnavailable, err)
	}
	req.Header.Set("X-Session-Id", a.token())

	res, err := a.http.Do(req)
	if err != nil {
		a.log.Warn("Remote fetch failed", "error", err, "path", path)
		return fmt.Errorf("%w: %v", apperrors.ErrRemoteUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case res.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", apperrors.ErrRemoteUnavailable, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrRemoteUnavailable, err)
	}
	return nil
}
