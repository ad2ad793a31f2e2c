// Package ident maps the ERP's 32-bit integer identifiers onto local UUIDs.
//
// The remote id occupies the last four bytes of the UUID, big-endian; all
// other bytes are zero. Every read and write of a remote-derived UUID goes
// through this package so both directions agree on byte order.
package ident

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ToLocal zero-extends a remote id into a UUID.
func ToLocal(remoteID int32) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[12:16], uint32(remoteID))
	return u
}

// ToRemote extracts the remote id from a UUID produced by ToLocal. A UUID
// with non-zero high bytes was not produced by this mapper.
func ToRemote(localID uuid.UUID) (int32, error) {
	for _, b := range localID[0:12] {
		if b != 0 {
			return 0, fmt.Errorf("uuid %s does not embed a remote id", localID)
		}
	}
	return int32(binary.BigEndian.Uint32(localID[12:16])), nil
}

// IsRemoteDerived reports whether the UUID carries only an embedded remote id.
func IsRemoteDerived(localID uuid.UUID) bool {
	_, err := ToRemote(localID)
	return err == nil
}
