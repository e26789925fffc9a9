// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/reportbot/lib/ref"
)

// transactionDomainKey is the BLAKE3 key for transaction IDs: the
// ASCII domain name, zero-padded to 32 bytes. Changing it changes
// every ID, which would let a report re-sent across an upgrade post
// twice.
var transactionDomainKey = [32]byte{
	'b', 'u', 'r', 'e', 'a', 'u', '.', 'r', 'e', 'p', 'o', 'r', 't', '.', 't', 'x',
	'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// TransactionID returns the Matrix transaction ID for sending report
// reportID to roomID from deviceID. The result is 64 hex characters.
func TransactionID(deviceID string, roomID ref.RoomID, reportID int64) string {
	hasher, err := blake3.NewKeyed(transactionDomainKey[:])
	if err != nil {
		panic("delivery: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	// Length-prefix the variable fields so ("ab","c") and ("a","bc")
	// hash differently.
	var scratch [8]byte
	for _, field := range []string{deviceID, roomID.String()} {
		binary.BigEndian.PutUint64(scratch[:], uint64(len(field)))
		hasher.Write(scratch[:])
		hasher.WriteString(field)
	}
	binary.BigEndian.PutUint64(scratch[:], uint64(reportID))
	hasher.Write(scratch[:])

	var digest [32]byte
	hasher.Sum(digest[:0])
	return hex.EncodeToString(digest[:])
}
