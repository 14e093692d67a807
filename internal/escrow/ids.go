package escrow

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ID is a content-derived identifier of an organization or campaign.
type ID [32]byte

// Hash is an opaque 32-byte description digest supplied by the creator.
type Hash [32]byte

var errBadHex = errors.New("expected 32 bytes of hex")

func (id ID) String() string { return encodeHex(id[:]) }

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool { return id == ID{} }

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(b []byte) error { return decodeHex32(string(b), (*[32]byte)(id)) }

func (h Hash) String() string { return encodeHex(h[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(b []byte) error { return decodeHex32(string(b), (*[32]byte)(h)) }

// ParseID decodes a 0x-prefixed (or bare) hex identifier.
func ParseID(s string) (ID, error) {
	var id ID
	err := decodeHex32(s, (*[32]byte)(&id))
	return id, err
}

// ParseHash decodes a 0x-prefixed (or bare) hex description hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	err := decodeHex32(s, (*[32]byte)(&h))
	return h, err
}

// OrganizationID derives the identifier of an organization from its name
// and description hash. Identical inputs always yield the same id, which is
// how duplicate registrations are detected.
func OrganizationID(name string, description Hash) ID {
	var enc canonical
	enc.str(name)
	enc.raw(description[:])
	return enc.sum()
}

// CampaignID derives the identifier of a campaign. The parent organization
// id is part of the input, so campaign ids never collide across organizations.
func CampaignID(name string, description Hash, target, timeline int64, org ID) ID {
	var enc canonical
	enc.str(name)
	enc.raw(description[:])
	enc.int(target)
	enc.int(timeline)
	enc.raw(org[:])
	return enc.sum()
}

// canonical is a length-prefixed encoding, so field boundaries are never
// ambiguous: strings are a 4-byte big-endian length plus bytes, integers are
// 8 bytes big-endian, blobs are written as is.
type canonical struct {
	buf []byte
}

func (c *canonical) str(s string) {
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(len(s)))
	c.buf = append(c.buf, s...)
}

func (c *canonical) int(v int64) {
	c.buf = binary.BigEndian.AppendUint64(c.buf, uint64(v))
}

func (c *canonical) raw(b []byte) {
	c.buf = append(c.buf, b...)
}

func (c *canonical) sum() ID {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(c.buf)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeHex32(s string, dst *[32]byte) error {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != 64 {
		return errBadHex
	}
	if _, err := hex.Decode(dst[:], []byte(s)); err != nil {
		return errBadHex
	}
	return nil
}
