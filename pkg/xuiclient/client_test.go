package xuiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xui-shop-core/internal/config"
	apperrors "xui-shop-core/internal/errors"
	"xui-shop-core/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	panel := config.PanelConfig{
		URL:            srv.URL,
		User:           "admin",
		Password:       "secret",
		RequestTimeout: 2 * time.Second,
	}
	login := config.LoginConfig{
		Retries: 3,
		Timeout: 2 * time.Second,
		Backoff: time.Millisecond,
	}
	return NewClient(panel, login, nil, testLogger())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testSession() *models.Session {
	return &models.Session{Cookies: []*http.Cookie{{Name: "3x-ui", Value: "token"}}}
}

func TestLoginCapturesCookies(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "token"})
		writeJSON(w, map[string]any{"success": true, "msg": "ok"})
	}))

	session, err := c.Login(context.Background())
	require.NoError(t, err)
	require.Len(t, session.Cookies, 1)
	assert.Equal(t, "token", session.Cookies[0].Value)
	assert.Equal(t, map[string]string{"username": "admin", "password": "secret"}, got)
}

func TestLoginRetriesServerErrors(t *testing.T) {
	var attempts int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "token"})
		writeJSON(w, map[string]any{"success": true})
	}))

	session, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, session)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestLoginGivesUpAfterRetries(t *testing.T) {
	var attempts int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Login(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	var apiErr *apperrors.PanelAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestLoginRejectionIsNotRetried(t *testing.T) {
	var attempts int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		writeJSON(w, map[string]any{"success": false, "msg": "wrong password"})
	}))

	_, err := c.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestLoginWithoutCookie(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true})
	}))

	_, err := c.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
}

func TestListInbounds(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/panel/api/inbounds/list", r.URL.Path)
		cookie, err := r.Cookie("3x-ui")
		require.NoError(t, err)
		assert.Equal(t, "token", cookie.Value)

		writeJSON(w, map[string]any{
			"success": true,
			"obj": []any{
				map[string]any{
					"id":             1,
					"protocol":       "vless",
					"port":           443,
					"settings":       `{"clients":[{"id":"u-1","email":"42","expiryTime":1735689600123}]}`,
					"streamSettings": `{"network":"tcp","security":"reality"}`,
				},
				map[string]any{
					"id":       6,
					"protocol": "vmess",
					"settings": map[string]any{"clients": []any{map[string]any{"id": "u-2", "email": "42-vmess"}}},
				},
			},
		})
	}))

	inbounds, err := c.ListInbounds(context.Background(), testSession())
	require.NoError(t, err)
	require.Len(t, inbounds, 2)

	assert.Equal(t, 1, inbounds[0].ID)
	assert.Equal(t, 443, inbounds[0].Port)
	assert.Equal(t, "reality", inbounds[0].StreamSettings["security"])
	require.Len(t, inbounds[0].Clients, 1)
	assert.Equal(t, int64(1735689600123), inbounds[0].Clients[0].ExpiryTime())

	assert.Equal(t, "vmess", inbounds[1].Protocol)
	assert.Equal(t, "u-2", inbounds[1].FindClient("42-vmess").ID())
}

func TestListInboundsEmptyObj(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true, "obj": nil})
	}))

	inbounds, err := c.ListInbounds(context.Background(), testSession())
	require.NoError(t, err)
	assert.Empty(t, inbounds)
}

func TestListInboundsUnauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.ListInbounds(context.Background(), testSession())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestTransportFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(config.PanelConfig{URL: url, User: "admin", Password: "secret", RequestTimeout: time.Second},
		config.LoginConfig{Retries: 1, Timeout: time.Second, Backoff: time.Millisecond}, nil, testLogger())
	ctx := context.Background()

	_, err := c.ListInbounds(ctx, testSession())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPanelUnreachable)
	assert.True(t, apperrors.IsUnavailable(err))

	err = c.AddClient(ctx, testSession(), 1, models.ClientRecord{"id": "a", "email": "42"})
	assert.ErrorIs(t, err, apperrors.ErrPanelUnreachable)

	err = c.UpdateClient(ctx, testSession(), 1, "a", models.ClientRecord{"id": "a", "email": "42"})
	assert.ErrorIs(t, err, apperrors.ErrPanelUnreachable)

	_, err = c.Login(ctx)
	assert.ErrorIs(t, err, apperrors.ErrPanelUnreachable)
}

func TestRequestTimeoutIsUnreachable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ListInbounds(ctx, testSession())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestListInboundsMalformed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>login</html>"))
	}))

	_, err := c.ListInbounds(context.Background(), testSession())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
}

func TestAddClientBody(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/panel/api/inbounds/addClient", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, map[string]any{"success": true})
	}))

	record := models.ClientRecord{"id": "u-1", "email": "42", "limitIp": 6}
	require.NoError(t, c.AddClient(context.Background(), testSession(), 1, record))

	assert.Equal(t, float64(1), body["id"])
	settings, ok := body["settings"].(string)
	require.True(t, ok, "settings must be a JSON string")

	var decoded struct {
		Clients []map[string]any `json:"clients"`
	}
	require.NoError(t, json.Unmarshal([]byte(settings), &decoded))
	require.Len(t, decoded.Clients, 1)
	assert.Equal(t, "42", decoded.Clients[0]["email"])
}

func TestAddClientDuplicate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": false, "msg": "Duplicate email: 42"})
	}))

	err := c.AddClient(context.Background(), testSession(), 1, models.ClientRecord{"email": "42"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrClientExists)
}

func TestUpdateClientPath(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		writeJSON(w, map[string]any{"success": true})
	}))

	err := c.UpdateClient(context.Background(), testSession(), 2, "u-9", models.ClientRecord{"id": "u-9", "email": "42-obhod"})
	require.NoError(t, err)
	assert.Equal(t, "/panel/api/inbounds/updateClient/u-9", path)
}

func TestUpdateClientFailureKeepsMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": false, "msg": "inbound not found"})
	}))

	err := c.UpdateClient(context.Background(), testSession(), 2, "u-9", models.ClientRecord{"email": "42"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrClientExists)

	var apiErr *apperrors.PanelAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "inbound not found", apiErr.Message)
	assert.Equal(t, OpUpdateClient, apiErr.Operation)
}

func TestDeleteClientPath(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		writeJSON(w, map[string]any{"success": true})
	}))

	require.NoError(t, c.DeleteClient(context.Background(), testSession(), 3, "u-1"))
	assert.Equal(t, "/panel/api/inbounds/3/delClient/u-1", path)
}
