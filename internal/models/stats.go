package models

// SyncStats summarizes one reconciliation pass
type SyncStats struct {
	UsersInRegistry   int `json:"users_in_registry"`
	UsersInPanel      int `json:"users_in_panel"`
	Synced            int `json:"synced"`
	Updated           int `json:"updated"`
	Cleared           int `json:"cleared"`
	Errors            int `json:"errors"`
	ExtraClientsAdded int `json:"extra_clients_added"`
}
