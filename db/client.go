package db

import (
	"errors"
	"fmt"

	"fall-detection/models"
	"fall-detection/utils"
)

// ErrUnsupportedDB is returned for an unknown DB_TYPE.
var ErrUnsupportedDB = errors.New("unsupported database type")

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// DBClient stores analysis runs.
type DBClient interface {
	Close() error
	StoreRun(run *models.Run) error
	GetRun(id string) (*models.Run, error)
	ListRuns(limit int) ([]models.Run, error)
	DeleteRun(id string) error
}

// NewDBClient returns the client selected by DB_TYPE (sqlite by default).
func NewDBClient() (DBClient, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")

	switch dbType {
	case "sqlite":
		return NewSQLiteClient(utils.GetEnv("SQLITE_PATH", "db/fall_detection.sqlite3"))
	case "mongo":
		uri := utils.GetEnv("MONGO_URI", "mongodb://localhost:27017")
		return NewMongoClient(uri, utils.GetEnv("MONGO_DATABASE", "fall-detection"))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDB, dbType)
	}
}
