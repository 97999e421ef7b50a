package notifications

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	mysqlDeadlock         = 1213
	postgresSerialization = "40001"
	postgresDeadlock      = "40P01"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingIDProvider  = errors.New("id provider is required")
	errMissingFollowGraph = errors.New("follow graph is required")
	errMissingViewerID    = errors.New("viewer identifier is required")
	errBatchConflict      = errors.New("batching window changed concurrently")
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ConfigurationError reports an event whose type has no batch key or message mapping.
type ConfigurationError struct {
	Type       NotificationType
	Family     EventFamily
	EntityType EntityType
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Type != "" && e.EntityType != "":
		return fmt.Sprintf("notifications: type %q has no mapping for entity type %q", e.Type, e.EntityType)
	case e.Type != "":
		return fmt.Sprintf("notifications: type %q has no mapping", e.Type)
	default:
		return fmt.Sprintf("notifications: %s events have no mapping for entity type %q", e.Family, e.EntityType)
	}
}

// NotFoundError reports a notification id that does not exist for the viewer.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("notifications: %s %q not found", e.Kind, e.ID)
}

// StorageError wraps a persistence failure.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("notifications: storage failure: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidationError reports input rejected before any storage access.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("notifications: invalid input: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "duplicate key") ||
		strings.Contains(message, "duplicate entry")
}

// isTransactionAborted reports a deadlock or serialization failure. The
// database has already rolled the transaction back, so the write can be
// attempted again from the start.
func isTransactionAborted(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDeadlock
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresSerialization || pgErr.Code == postgresDeadlock
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "deadlock") ||
		strings.Contains(message, "could not serialize access")
}
