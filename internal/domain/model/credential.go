package model

import "time"

// Credential holds a stored service credential key-value pair. Service
// identifies the external system ("sedapal"), and Key identifies the
// credential within it ("email", "password").
type Credential struct {
	ID        int64
	Service   string
	Key       string
	Value     string
	UpdatedAt time.Time
}
