package dbconn

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Constraint is the kind of integrity constraint a statement violated.
type Constraint int

// Constraint kinds.
const (
	NoViolation Constraint = iota
	UniqueViolation
	ForeignKeyViolation
	CheckViolation
	NotNullViolation
)

func (c Constraint) String() string {
	switch c {
	case UniqueViolation:
		return "unique"
	case ForeignKeyViolation:
		return "foreign key"
	case CheckViolation:
		return "check"
	case NotNullViolation:
		return "not null"
	default:
		return "none"
	}
}

// PostgreSQL SQLSTATE codes of integrity constraint violations.
var pgConstraintCodes = map[string]Constraint{
	"23505": UniqueViolation,
	"23503": ForeignKeyViolation,
	"23514": CheckViolation,
	"23502": NotNullViolation,
}

// MySQL server error numbers of integrity constraint violations.
var mysqlConstraintCodes = map[uint16]Constraint{
	1062: UniqueViolation,
	1451: ForeignKeyViolation,
	1452: ForeignKeyViolation,
	3819: CheckViolation,
	1048: NotNullViolation,
}

// SQLite extended result codes of integrity constraint violations.
var sqliteConstraintCodes = map[int]Constraint{
	sqlite3.SQLITE_CONSTRAINT_UNIQUE:     UniqueViolation,
	sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY: UniqueViolation,
	sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY: ForeignKeyViolation,
	sqlite3.SQLITE_CONSTRAINT_CHECK:      CheckViolation,
	sqlite3.SQLITE_CONSTRAINT_NOTNULL:    NotNullViolation,
}

// ConstraintViolation classifies err as an integrity constraint violation.
// name is the constraint, or for NOT NULL the column, when the driver
// reports it.
func ConstraintViolation(err error) (kind Constraint, name string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind = pgConstraintCodes[pgErr.Code]
		if kind == NotNullViolation {
			return kind, pgErr.ColumnName
		}
		if kind != NoViolation {
			return kind, pgErr.ConstraintName
		}
		return NoViolation, ""
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlConstraintCodes[myErr.Number], ""
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return sqliteConstraintCodes[liteErr.Code()], ""
	}
	return NoViolation, ""
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	kind, _ := ConstraintViolation(err)
	return kind == UniqueViolation
}
