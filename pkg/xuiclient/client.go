package xuiclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"xui-shop-core/internal/config"
	"xui-shop-core/internal/constants"
	apperrors "xui-shop-core/internal/errors"
	"xui-shop-core/internal/metrics"
	"xui-shop-core/internal/models"
)

// Operation names used in errors and metrics
const (
	OpLogin        = "login"
	OpListInbounds = "list_inbounds"
	OpAddClient    = "add_client"
	OpUpdateClient = "update_client"
	OpDeleteClient = "delete_client"
)

// Client is an x-ui / 3x-ui panel API client
type Client struct {
	httpClient  *resty.Client
	loginClient *resty.Client
	panel       config.PanelConfig
	metrics     *metrics.Metrics
	logger      *logrus.Logger
}

// APIResponse represents the response envelope of the panel API
type APIResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// NewClient creates a new panel API client
func NewClient(panel config.PanelConfig, login config.LoginConfig, m *metrics.Metrics, logger *logrus.Logger) *Client {
	tlsConfig := &tls.Config{InsecureSkipVerify: panel.InsecureTLS}

	// API calls are never retried: a repeated write could apply twice
	httpClient := resty.New().
		SetTimeout(panel.RequestTimeout).
		SetHeader("Accept", "application/json").
		SetTLSClientConfig(tlsConfig)

	c := &Client{
		httpClient: httpClient,
		panel:      panel,
		metrics:    m,
		logger:     logger,
	}

	retries := login.Retries
	if retries < 1 {
		retries = 1
	}
	backoff := login.Backoff

	c.loginClient = resty.New().
		SetTimeout(login.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(retries - 1).
		SetRetryWaitTime(backoff).
		SetRetryMaxWaitTime(constants.DefaultRetryMaxWaitTime * time.Second).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			// base, 2*base, 4*base ...
			if resp == nil || resp.Request == nil || resp.Request.Attempt < 1 {
				return backoff, nil
			}
			return backoff << (resp.Request.Attempt - 1), nil
		}).
		AddRetryCondition(c.loginShouldRetry).
		SetTLSClientConfig(tlsConfig)

	return c
}

// loginShouldRetry retries transport failures, non-2xx statuses and bodies that
// are not a panel envelope. A well-formed rejection is final.
func (c *Client) loginShouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		c.metrics.LoginAttempt(err)
		c.logger.Errorf("Login attempt failed: %v", err)
		return true
	}
	if resp == nil {
		c.metrics.LoginAttempt(apperrors.ErrMalformedResponse)
		return true
	}
	if !resp.IsSuccess() {
		c.metrics.LoginAttempt(fmt.Errorf("status %d", resp.StatusCode()))
		c.logger.Errorf("Login attempt failed - Status: %d", resp.StatusCode())
		return true
	}
	var apiResp APIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		c.metrics.LoginAttempt(err)
		c.logger.Errorf("Login attempt returned unparseable body: %v", err)
		return true
	}
	if !apiResp.Success {
		c.metrics.LoginAttempt(apperrors.ErrUnauthorized)
		return false
	}
	c.metrics.LoginAttempt(nil)
	return false
}

// Login authenticates with the panel and returns the captured session
func (c *Client) Login(ctx context.Context) (*models.Session, error) {
	c.logger.Infof("Logging in to panel at %s", c.panel.URL)
	c.logger.Debugf("Using username: %s", c.panel.User)

	resp, err := c.loginClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"username": c.panel.User,
			"password": c.panel.Password,
		}).
		Post(fmt.Sprintf("%s/login", c.panel.URL))

	if err != nil {
		c.metrics.PanelRequest(OpLogin, err)
		return nil, fmt.Errorf("login request failed: %w: %w", apperrors.ErrPanelUnreachable, err)
	}

	apiResp, err := c.parse(OpLogin, resp)
	if err != nil {
		c.metrics.PanelRequest(OpLogin, err)
		return nil, err
	}
	if !apiResp.Success {
		err := &apperrors.PanelAPIError{Operation: OpLogin, Status: resp.StatusCode(), Message: apiResp.Msg, Err: apperrors.ErrUnauthorized}
		c.metrics.PanelRequest(OpLogin, err)
		c.logger.Errorf("Login rejected: %s", apiResp.Msg)
		return nil, err
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		err := &apperrors.PanelAPIError{Operation: OpLogin, Status: resp.StatusCode(), Message: "no session cookie received from server", Err: apperrors.ErrMalformedResponse}
		c.metrics.PanelRequest(OpLogin, err)
		return nil, err
	}

	c.metrics.PanelRequest(OpLogin, nil)
	c.logger.Info("Successfully logged in to panel")
	return &models.Session{Cookies: cookies, CreatedAt: time.Now()}, nil
}

// ListInbounds gets every inbound with its clients
func (c *Client) ListInbounds(ctx context.Context, session *models.Session) ([]models.Inbound, error) {
	resp, err := c.request(ctx, session).
		Get(fmt.Sprintf("%s/panel/api/inbounds/list", c.panel.URL))
	if err != nil {
		c.metrics.PanelRequest(OpListInbounds, err)
		return nil, fmt.Errorf("list inbounds request failed: %w: %w", apperrors.ErrPanelUnreachable, err)
	}

	apiResp, err := c.parseSuccess(OpListInbounds, resp)
	if err != nil {
		c.metrics.PanelRequest(OpListInbounds, err)
		return nil, err
	}

	var inbounds []models.Inbound
	if len(apiResp.Obj) > 0 && string(apiResp.Obj) != "null" {
		if err := json.Unmarshal(apiResp.Obj, &inbounds); err != nil {
			err := &apperrors.PanelAPIError{Operation: OpListInbounds, Status: resp.StatusCode(), Message: err.Error(), Err: apperrors.ErrMalformedResponse}
			c.metrics.PanelRequest(OpListInbounds, err)
			return nil, err
		}
	}

	c.metrics.PanelRequest(OpListInbounds, nil)
	c.logger.Debugf("Fetched %d inbounds", len(inbounds))
	return inbounds, nil
}

// AddClient creates a client in an inbound
func (c *Client) AddClient(ctx context.Context, session *models.Session, inboundID int, client models.ClientRecord) error {
	body, err := clientsBody(inboundID, client)
	if err != nil {
		return err
	}

	c.logger.Infof("Adding client to inbound %d with email: %s", inboundID, client.Email())

	resp, err := c.request(ctx, session).
		SetBody(body).
		Post(fmt.Sprintf("%s/panel/api/inbounds/addClient", c.panel.URL))
	if err != nil {
		c.metrics.PanelRequest(OpAddClient, err)
		return fmt.Errorf("add client request failed: %w: %w", apperrors.ErrPanelUnreachable, err)
	}

	if _, err := c.parseSuccess(OpAddClient, resp); err != nil {
		c.metrics.PanelRequest(OpAddClient, err)
		return err
	}

	c.metrics.PanelRequest(OpAddClient, nil)
	c.logger.Infof("Successfully added client %s to inbound %d", client.Email(), inboundID)
	return nil
}

// UpdateClient rewrites a client addressed by its id
func (c *Client) UpdateClient(ctx context.Context, session *models.Session, inboundID int, clientID string, client models.ClientRecord) error {
	body, err := clientsBody(inboundID, client)
	if err != nil {
		return err
	}

	c.logger.Infof("Updating client %s in inbound %d", client.Email(), inboundID)

	resp, err := c.request(ctx, session).
		SetBody(body).
		Post(fmt.Sprintf("%s/panel/api/inbounds/updateClient/%s", c.panel.URL, clientID))
	if err != nil {
		c.metrics.PanelRequest(OpUpdateClient, err)
		return fmt.Errorf("update client request failed: %w: %w", apperrors.ErrPanelUnreachable, err)
	}

	if _, err := c.parseSuccess(OpUpdateClient, resp); err != nil {
		c.metrics.PanelRequest(OpUpdateClient, err)
		return err
	}

	c.metrics.PanelRequest(OpUpdateClient, nil)
	c.logger.Infof("Successfully updated client %s in inbound %d", client.Email(), inboundID)
	return nil
}

// DeleteClient deletes a client from a specific inbound
func (c *Client) DeleteClient(ctx context.Context, session *models.Session, inboundID int, clientID string) error {
	c.logger.Debugf("Deleting client with UUID %s from inbound %d", clientID, inboundID)

	resp, err := c.request(ctx, session).
		Post(fmt.Sprintf("%s/panel/api/inbounds/%d/delClient/%s", c.panel.URL, inboundID, clientID))
	if err != nil {
		c.metrics.PanelRequest(OpDeleteClient, err)
		return fmt.Errorf("delete client request failed: %w: %w", apperrors.ErrPanelUnreachable, err)
	}

	if _, err := c.parseSuccess(OpDeleteClient, resp); err != nil {
		c.metrics.PanelRequest(OpDeleteClient, err)
		return err
	}

	c.metrics.PanelRequest(OpDeleteClient, nil)
	c.logger.Infof("Successfully deleted client %s from inbound %d", clientID, inboundID)
	return nil
}

func (c *Client) request(ctx context.Context, session *models.Session) *resty.Request {
	req := c.httpClient.R().SetContext(ctx)
	if session != nil {
		req.SetCookies(session.Cookies)
	}
	return req
}

// parse decodes the panel envelope of a 2xx response
func (c *Client) parse(op string, resp *resty.Response) (*APIResponse, error) {
	c.logger.Debugf("%s response status: %d, body: %s", op, resp.StatusCode(), string(resp.Body()))

	if !resp.IsSuccess() {
		c.logger.Errorf("%s failed - Status: %d, Response: %s", op, resp.StatusCode(), string(resp.Body()))
		return nil, &apperrors.PanelAPIError{Operation: op, Status: resp.StatusCode(), Message: string(resp.Body())}
	}

	if len(resp.Body()) == 0 {
		c.logger.Errorf("Empty response body from server during %s", op)
		return nil, &apperrors.PanelAPIError{Operation: op, Status: resp.StatusCode(), Message: "empty response", Err: apperrors.ErrMalformedResponse}
	}

	var apiResp APIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		c.logger.Errorf("Failed to parse %s response: %v, response body: %s", op, err, string(resp.Body()))
		return nil, &apperrors.PanelAPIError{Operation: op, Status: resp.StatusCode(), Message: string(resp.Body()), Err: apperrors.ErrMalformedResponse}
	}

	return &apiResp, nil
}

// parseSuccess is parse plus a check of the success flag
func (c *Client) parseSuccess(op string, resp *resty.Response) (*APIResponse, error) {
	apiResp, err := c.parse(op, resp)
	if err != nil {
		return nil, err
	}
	if !apiResp.Success {
		c.logger.Errorf("%s failed with message: %s", op, apiResp.Msg)
		apiErr := &apperrors.PanelAPIError{Operation: op, Status: resp.StatusCode(), Message: apiResp.Msg}
		if op == OpAddClient && isDuplicateMessage(apiResp.Msg) {
			apiErr.Err = apperrors.ErrClientExists
		}
		return nil, apiErr
	}
	return apiResp, nil
}

func isDuplicateMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "exist")
}

// clientsBody builds {id, settings:"{\"clients\":[...]}"}
func clientsBody(inboundID int, client models.ClientRecord) (map[string]any, error) {
	settings := map[string]any{
		"clients": []map[string]any{client},
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	return map[string]any{
		"id":       inboundID,
		"settings": string(settingsJSON),
	}, nil
}
