package models

import (
	"net/http"
	"time"
)

// Session is an authenticated panel session
type Session struct {
	Cookies   []*http.Cookie `json:"cookies"`
	CreatedAt time.Time      `json:"created_at"`
}
