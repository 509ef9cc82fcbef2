// Package storage implements the persistence layer of the versioned data
// store: the unit-of-work session, entity/value access addressed by attribute
// name, and the audit shadow-table writer.
package storage

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/cordate/datastore/errors"
)

// Timestamp formats used for every persisted date column. Plain lexically
// ordered text so the database-level create_date <= modify_date check holds.
const (
	DateTimeFormat = "2006-01-02 15:04:05.000"
	DateFormat     = "2006-01-02"
)

// Querier is the subset of sql.DB/sql.Tx the read paths need.
type Querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// ActorResolver returns the user key to blame for mutations in one unit of
// work. Bound once at session construction; never a mutable global.
type ActorResolver func() string

// Actor returns a resolver for a fixed user key.
func Actor(key string) ActorResolver {
	return func() string { return key }
}

// Session is one unit of work: a transaction bound to a resolved actor.
// Every mutating store operation hangs off a session so its checksum,
// schema-state, metadata and audit side effects commit or roll back together
// with the business mutation.
type Session struct {
	tx       *sql.Tx
	actorID  int64
	actorKey string
	now      func() time.Time
	auditor  *Auditor
	logger   *zap.SugaredLogger
}

// NewSession begins a transaction and resolves the actor. An unknown or
// unbound actor fails immediately with ErrNonExistentUser rather than
// auditing under an unknown identity.
func NewSession(db *sql.DB, resolve ActorResolver, logger *zap.SugaredLogger) (*Session, error) {
	if resolve == nil {
		return nil, errors.Wrap(errors.ErrNonExistentUser, "no actor resolver bound to this unit of work")
	}
	key := resolve()
	if key == "" {
		return nil, errors.Wrap(errors.ErrNonExistentUser, "actor resolver returned an empty key")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}

	var actorID int64
	err = tx.QueryRow("SELECT id FROM user WHERE key = ?", key).Scan(&actorID)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, errors.Wrapf(errors.ErrNonExistentUser, "actor %q is not a registered user", key)
	}
	if err != nil {
		tx.Rollback()
		return nil, errors.Wrap(err, "resolve actor")
	}

	return &Session{
		tx:       tx,
		actorID:  actorID,
		actorKey: key,
		now:      time.Now,
		auditor:  NewAuditor(),
		logger:   logger,
	}, nil
}

// Commit commits the unit of work.
func (s *Session) Commit() error {
	return errors.Wrap(s.tx.Commit(), "commit session")
}

// Rollback aborts the unit of work, reverting all staged checksum, metadata
// and audit side effects along with the business mutation.
func (s *Session) Rollback() error {
	return s.tx.Rollback()
}

// Tx exposes the underlying transaction for callers that need to run
// additional statements inside the same unit of work.
func (s *Session) Tx() *sql.Tx {
	return s.tx
}

// ActorID returns the resolved user id blamed for this session's mutations.
func (s *Session) ActorID() int64 {
	return s.actorID
}

// timestamp returns the current instant in the persisted text format.
func (s *Session) timestamp() string {
	return s.now().UTC().Format(DateTimeFormat)
}

// touch restamps a row's modify metadata with the session actor. Runs before
// every audit snapshot so history records who made (or deleted) the change.
func (s *Session) touch(table string, id int64) error {
	_, err := s.tx.Exec(
		`UPDATE "`+table+`" SET modify_date = ?, modify_user_id = ? WHERE id = ?`,
		s.timestamp(), s.actorID, id,
	)
	return errors.Wrapf(err, "stamp %s %d", table, id)
}

// audit restamps and snapshots a mutated row. Fixed hook order: metadata
// stamping, then the audit copy, inside the same transaction.
func (s *Session) audit(table string, id int64) error {
	if err := s.touch(table, id); err != nil {
		return err
	}
	return s.auditor.Snapshot(s.tx, table, id)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t *time.Time, format string) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(format), Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// ParseTime parses a timestamp in any of the persisted text formats.
func ParseTime(v string) (time.Time, error) {
	return parseTime(v)
}

func parseTime(v string) (time.Time, error) {
	for _, format := range []string{DateTimeFormat, "2006-01-02 15:04:05", DateFormat} {
		if t, err := time.ParseInLocation(format, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unparseable timestamp %q", v)
}

func parseTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AddUser registers a user key so it can act as an audit blame identity.
// Idempotent.
func AddUser(db Querier, key string) error {
	if key == "" {
		return errors.New("user key is required")
	}
	_, err := db.Exec("INSERT INTO user (key) VALUES (?) ON CONFLICT (key) DO NOTHING", key)
	return errors.Wrapf(err, "add user %q", key)
}
