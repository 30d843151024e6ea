package domain

import "time"

// StoreDriver names the record store engine behind a connection.
type StoreDriver string

const (
	StoreDriverMongoDB  StoreDriver = "mongodb"
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverMySQL    StoreDriver = "mysql"
	StoreDriverSQLite   StoreDriver = "sqlite"
	StoreDriverMemory   StoreDriver = "memory"
)

// StoreConnection holds what is needed to open the process-wide record store.
type StoreConnection struct {
	Driver   StoreDriver       `yaml:"driver" json:"driver"`
	URI      string            `yaml:"uri" json:"uri"`   // full connection string, wins over host/port
	Host     string            `yaml:"host" json:"host"` // hostname or file path (sqlite)
	Port     int               `yaml:"port" json:"port"`
	Database string            `yaml:"database" json:"database"` // postgres dbname; ignored elsewhere
	Username string            `yaml:"username" json:"username"`
	Password string            `yaml:"password" json:"-"`
	SSLMode  string            `yaml:"ssl_mode" json:"sslMode"`
	Attach   map[string]string `yaml:"attach" json:"attach,omitempty"` // sqlite schema name → file
}

// Redacted returns a copy with the password masked.
func (c StoreConnection) Redacted() StoreConnection {
	out := c
	if out.Password != "" {
		out.Password = "***REDACTED***"
	}
	return out
}

// SaveStatus is the outcome of one save attempt.
type SaveStatus string

const (
	SaveRunning SaveStatus = "running"
	SaveSuccess SaveStatus = "success"
	SaveError   SaveStatus = "error"
	SavePartial SaveStatus = "partial" // delete succeeded, insert did not
)

// SaveRun is a journal entry for one save attempt against a collection.
type SaveRun struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	Store       string     `json:"store"`
	Collection  string     `json:"collection"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  time.Time  `json:"finishedAt"`
	Status      SaveStatus `json:"status"`
	RowsDeleted int        `json:"rowsDeleted"`
	RowsWritten int        `json:"rowsWritten"`
	Error       string     `json:"error,omitempty"`
	PendingJSON string     `json:"pendingJson,omitempty"` // snapshot records kept for partial saves
}

// SaveLog persists SaveRuns.
type SaveLog interface {
	StartRun(run *SaveRun) error
	FinishRun(run *SaveRun) error
	ListRuns(h Handle, limit int) ([]SaveRun, error)
}
