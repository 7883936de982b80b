// masker.go
//
// A research dataset access and desensitization service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of datashare.
// datashare is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// datashare is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with datashare.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package anonymize

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Masker derives pseudonyms with keyed BLAKE2b-256. The output is one-way
// without the key and the original value.
type Masker struct {
	key []byte
}

// NewMasker returns a masker keyed by secret. BLAKE2b accepts keys of at most
// 64 bytes.
func NewMasker(secret []byte) (*Masker, error) {
	if len(secret) == 0 {
		return nil, errors.New("mask secret is empty")
	}
	if len(secret) > blake2b.Size {
		return nil, errors.New("mask secret exceeds 64 bytes")
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Masker{key: key}, nil
}

// Pseudonym returns the hex digest of value within scope and column.
func (m *Masker) Pseudonym(scope, column, value string) string {
	h, err := blake2b.New256(m.key)
	if err != nil {
		// key length is checked in NewMasker
		panic(err)
	}
	writeField(h, scope)
	writeField(h, column)
	writeField(h, value)
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes s so adjacent fields cannot run together.
func writeField(w io.Writer, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	w.Write(n[:])
	io.WriteString(w, s)
}
