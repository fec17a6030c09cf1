// Package state persists rooms and their members in postgres.
package state

import (
	"context"
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/RaghhavDTurki/realtime-collab-editor/sqlutil"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage is a roomserver.Store backed by postgres.
type Storage struct {
	RoomsTable   *RoomsTable
	MembersTable *MembersTable
	DB           *sqlx.DB
}

func NewStorage(postgresURI string) (*Storage, error) {
	db, err := sqlx.Open("postgres", postgresURI)
	if err != nil {
		sentry.CaptureException(err)
		return nil, fmt.Errorf("NewStorage: failed to open SQL DB: %w", err)
	}
	return NewStorageWithDB(db)
}

// NewStorageWithDB brings the schema up to date before returning.
func NewStorageWithDB(db *sqlx.DB) (*Storage, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Storage{
		RoomsTable:   &RoomsTable{},
		MembersTable: &MembersTable{},
		DB:           db,
	}, nil
}

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	logger.Info().Msgf(strings.TrimSpace(format), v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	logger.Fatal().Msgf(strings.TrimSpace(format), v...)
}

// Migrate applies every pending migration.
func Migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

func (s *Storage) Join(ctx context.Context, roomID, userID, name string) (rec wire.MemberRecord, version int64, err error) {
	err = sqlutil.WithTransaction(ctx, s.DB, func(txn *sqlx.Tx) error {
		memberID, err := s.RoomsTable.AllocateMemberID(txn, roomID)
		if err != nil {
			return fmt.Errorf("AllocateMemberID: %w", err)
		}
		rec = wire.MemberRecord{
			MemberID: memberID,
			UserID:   userID,
			Name:     name,
		}
		if err = s.MembersTable.Insert(txn, roomID, rec); err != nil {
			return fmt.Errorf("MembersTable.Insert: %w", err)
		}
		version, err = s.RoomsTable.BumpVersion(txn, roomID)
		return err
	})
	if err != nil {
		return wire.MemberRecord{}, 0, fmt.Errorf("Join: %w", err)
	}
	return rec, version, nil
}

func (s *Storage) Leave(ctx context.Context, roomID string, memberID int64) (version int64, removed bool, err error) {
	err = sqlutil.WithTransaction(ctx, s.DB, func(txn *sqlx.Tx) error {
		// lock the room row so concurrent changes get consecutive versions
		version, err = s.RoomsTable.SelectVersion(txn, roomID, true)
		if err != nil {
			return err
		}
		removed, err = s.MembersTable.Delete(txn, roomID, memberID)
		if err != nil || !removed {
			return err
		}
		version, err = s.RoomsTable.BumpVersion(txn, roomID)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("Leave: %w", err)
	}
	return version, removed, nil
}

func (s *Storage) Snapshot(ctx context.Context, roomID string) (version int64, members []wire.MemberRecord, err error) {
	err = sqlutil.WithTransaction(ctx, s.DB, func(txn *sqlx.Tx) error {
		version, err = s.RoomsTable.SelectVersion(txn, roomID, false)
		if err != nil {
			return err
		}
		members, err = s.MembersTable.Select(txn, roomID)
		return err
	})
	if err != nil {
		return 0, nil, fmt.Errorf("Snapshot: %w", err)
	}
	return version, members, nil
}

func (s *Storage) RoomIDs(ctx context.Context) (roomIDs []string, err error) {
	err = sqlutil.WithTransaction(ctx, s.DB, func(txn *sqlx.Tx) error {
		roomIDs, err = s.RoomsTable.SelectRoomIDs(txn)
		return err
	})
	return
}

func (s *Storage) Teardown() error {
	return s.DB.Close()
}
