package core

// UserRepository defines storage operations for users
type UserRepository interface {
	CreateUser(username, passwordHash string) (*User, error)
	GetUserByUsername(username string) (*User, error)
	GetByID(id int64) (*User, error)
	Update(user *User) error
	CountUsers() (int, error)
}

// ApiKeyRepository defines storage operations for API keys. Listing
// and revocation are scoped to the owning user.
type ApiKeyRepository interface {
	Create(key *ApiKey) error
	ListByUser(userID int64) ([]ApiKey, error)
	GetByHash(hash string) (*ApiKey, error)
	Revoke(id, userID int64) error
	UpdateLastUsed(id int64) error
}

// CredentialRepository defines storage operations for external database
// credentials. Save must deactivate any prior active row for the same
// user in the same transaction; GetActive returns the newest active row
// or nil when the user has not registered a database.
type CredentialRepository interface {
	Save(cred *DBCredential) error
	GetActive(userID string) (*DBCredential, error)
	Deactivate(userID string) error
	History(userID string, limit int) ([]DBCredential, error)
}

// AuditRepository defines storage operations for connection events
type AuditRepository interface {
	Record(event *ConnectionEvent) error
	GetRecent(limit int) ([]ConnectionEvent, error)
}
