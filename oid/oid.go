// Package oid generates and parses the server's opaque object identities:
// 12-byte values rendered as 24 lowercase hex digits. An identity is assigned
// once, on an object's first version, and shared by every later version.
package oid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// ID is a 12-byte object identity: 4 bytes of unix seconds, 5 bytes of
// per-process entropy, 3 bytes of monotonically increasing counter.
type ID [12]byte

var (
	processEntropy [5]byte
	counter        uint32
)

func init() {
	if _, err := rand.Read(processEntropy[:]); err != nil {
		panic(fmt.Sprintf("oid: cannot seed entropy: %v", err))
	}
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("oid: cannot seed counter: %v", err))
	}
	counter = binary.BigEndian.Uint32(seed[:])
}

// New generates a fresh identity.
func New() ID {
	var id ID
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:9], processEntropy[:])
	c := atomic.AddUint32(&counter, 1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)
	return id
}

// Hex renders the identity in its canonical lowercase hex form.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ID) String() string { return id.Hex() }

// FromHex parses a canonical 24-hex-digit identity string.
func FromHex(s string) (ID, error) {
	var id ID
	if !IsHex(s) {
		return id, fmt.Errorf("invalid object id %q", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid object id %q", s)
	}
	copy(id[:], b)
	return id, nil
}

// IsHex reports whether s matches the canonical identity grammar:
// exactly 24 lowercase hex digits.
func IsHex(s string) bool {
	if len(s) != 24 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
