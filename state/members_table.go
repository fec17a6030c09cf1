package state

import (
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"github.com/jmoiron/sqlx"
)

type memberRow struct {
	MemberID int64  `db:"member_id"`
	UserID   string `db:"user_id"`
	Name     string `db:"name"`
}

// MembersTable stores who is in each room, in join order.
type MembersTable struct{}

func (t *MembersTable) Insert(txn *sqlx.Tx, roomID string, rec wire.MemberRecord) error {
	_, err := txn.Exec(`INSERT INTO collab_members(room_id, member_id, user_id, name) VALUES($1, $2, $3, $4)`,
		roomID, rec.MemberID, rec.UserID, rec.Name)
	return err
}

// Delete returns false if the member was not in the room.
func (t *MembersTable) Delete(txn *sqlx.Tx, roomID string, memberID int64) (bool, error) {
	res, err := txn.Exec(`DELETE FROM collab_members WHERE room_id = $1 AND member_id = $2`, roomID, memberID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Select returns the members of the room in join order.
func (t *MembersTable) Select(txn *sqlx.Tx, roomID string) ([]wire.MemberRecord, error) {
	var rows []memberRow
	err := txn.Select(&rows, `SELECT member_id, user_id, name FROM collab_members WHERE room_id = $1 ORDER BY join_nid`, roomID)
	if err != nil {
		return nil, err
	}
	members := make([]wire.MemberRecord, len(rows))
	for i, row := range rows {
		members[i] = wire.MemberRecord{
			MemberID: row.MemberID,
			UserID:   row.UserID,
			Name:     row.Name,
		}
	}
	return members, nil
}
