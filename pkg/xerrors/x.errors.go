package xerrors

import "errors"

import "github.com/jackc/pgx/v5/pgconn"

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input provided")
)

// Realtime
var (
	ErrChannelClosed  = errors.New("channel closed")
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrUserIDRequired = errors.New("user ID required")
)
