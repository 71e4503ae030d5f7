package db

import "time"

// DomainModel represents a row in the domain_models table.
type DomainModel struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Model      []byte    `json:"model"`
	Revision   int       `json:"revision"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
	ModifiedBy string    `json:"modified_by"`
}

// ResolutionRecord represents a row in the resolution_log table.
type ResolutionRecord struct {
	ID                 string    `json:"id"`
	RequestID          string    `json:"request_id"`
	Host               string    `json:"host"`
	Operation          string    `json:"operation"`
	Address            string    `json:"address"`
	Outcome            string    `json:"outcome"`
	FailureDescription *string   `json:"failure_description,omitempty"`
	ServerOperations   []byte    `json:"server_operations,omitempty"`
	UserID             string    `json:"user_id"`
	Created            time.Time `json:"created"`
}

// RemoteHost represents a row in the remote_hosts table.
type RemoteHost struct {
	Name     string    `json:"name"`
	Subject  *string   `json:"subject,omitempty"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}
