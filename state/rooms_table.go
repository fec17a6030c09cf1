package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/RaghhavDTurki/realtime-collab-editor/internal"
	"github.com/jmoiron/sqlx"
)

// RoomsTable stores the version and member id counter of each room.
type RoomsTable struct{}

// AllocateMemberID creates the room if needed and returns a member id never handed out before.
func (t *RoomsTable) AllocateMemberID(txn *sqlx.Tx, roomID string) (memberID int64, err error) {
	err = txn.QueryRow(`
	INSERT INTO collab_rooms(room_id, last_member_id) VALUES($1, 1)
	ON CONFLICT (room_id) DO UPDATE SET last_member_id = collab_rooms.last_member_id + 1
	RETURNING last_member_id`, roomID).Scan(&memberID)
	return
}

// BumpVersion increments the room version and returns the new value.
func (t *RoomsTable) BumpVersion(txn *sqlx.Tx, roomID string) (version int64, err error) {
	err = txn.QueryRow(`UPDATE collab_rooms SET version = version + 1 WHERE room_id = $1 RETURNING version`, roomID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("BumpVersion: %s: %w", roomID, internal.ErrRoomNotFound)
	}
	return
}

// SelectVersion returns internal.ErrRoomNotFound for unknown rooms. Set forUpdate to lock the row
// for the rest of the transaction.
func (t *RoomsTable) SelectVersion(txn *sqlx.Tx, roomID string, forUpdate bool) (version int64, err error) {
	query := `SELECT version FROM collab_rooms WHERE room_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	err = txn.QueryRow(query, roomID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("SelectVersion: %s: %w", roomID, internal.ErrRoomNotFound)
	}
	return
}

func (t *RoomsTable) SelectRoomIDs(txn *sqlx.Tx) (roomIDs []string, err error) {
	err = txn.Select(&roomIDs, `SELECT room_id FROM collab_rooms ORDER BY room_id`)
	return
}
