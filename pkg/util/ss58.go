package util

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	// AccountIDLength is the raw length of a substrate AccountId32
	AccountIDLength = 32

	// SS58PrefixSubstrate is the generic substrate network prefix (addresses starting with "5")
	SS58PrefixSubstrate uint16 = 42

	ss58ChecksumLength = 2
	ss58MaxPrefix      = 16383
)

var ss58ChecksumPreimage = []byte("SS58PRE")

// DecodeSS58 decodes an SS58 address into its network prefix and raw 32-byte account id.
// Only 32-byte account ids (with a 2-byte checksum) are accepted.
func DecodeSS58(address string) (uint16, [AccountIDLength]byte, error) {
	var account [AccountIDLength]byte

	raw, err := base58.Decode(strings.TrimSpace(address))
	if err != nil {
		return 0, account, fmt.Errorf("invalid base58 in ss58 address %q: %w", address, err)
	}
	if len(raw) == 0 {
		return 0, account, fmt.Errorf("empty ss58 address")
	}

	var prefix uint16
	var prefixLen int
	switch {
	case raw[0] < 64:
		prefix = uint16(raw[0])
		prefixLen = 1
	case raw[0] < 128:
		if len(raw) < 2 {
			return 0, account, fmt.Errorf("ss58 address %q too short for two byte prefix", address)
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0x3f
		prefix = uint16(lower) | uint16(upper)<<8
		prefixLen = 2
	default:
		return 0, account, fmt.Errorf("ss58 address %q uses a reserved prefix byte 0x%02x", address, raw[0])
	}

	if len(raw) != prefixLen+AccountIDLength+ss58ChecksumLength {
		return 0, account, fmt.Errorf("ss58 address %q decodes to %d bytes, expected %d",
			address, len(raw), prefixLen+AccountIDLength+ss58ChecksumLength)
	}

	body := raw[:prefixLen+AccountIDLength]
	checksum := ss58Checksum(body)
	if !bytes.Equal(raw[prefixLen+AccountIDLength:], checksum[:ss58ChecksumLength]) {
		return 0, account, fmt.Errorf("ss58 address %q has an invalid checksum", address)
	}

	copy(account[:], raw[prefixLen:prefixLen+AccountIDLength])
	return prefix, account, nil
}

// EncodeSS58 renders a raw account id as an SS58 address for the given network prefix
func EncodeSS58(prefix uint16, account [AccountIDLength]byte) (string, error) {
	var payload []byte
	switch {
	case prefix < 64:
		payload = []byte{byte(prefix)}
	case prefix <= ss58MaxPrefix:
		first := byte((prefix & 0x00fc) >> 2)
		second := byte(prefix>>8) | byte(prefix&0x0003)<<6
		payload = []byte{first | 0x40, second}
	default:
		return "", fmt.Errorf("ss58 prefix %d out of range", prefix)
	}

	payload = append(payload, account[:]...)
	checksum := ss58Checksum(payload)
	payload = append(payload, checksum[:ss58ChecksumLength]...)

	return base58.Encode(payload), nil
}

// DecodeAccountID decodes a human readable identity into a raw 32-byte account id.
// Both SS58 addresses and 0x-prefixed hex strings are accepted.
func DecodeAccountID(identity string) ([AccountIDLength]byte, error) {
	var account [AccountIDLength]byte

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return account, fmt.Errorf("account id cannot be empty")
	}

	if strings.HasPrefix(identity, "0x") || strings.HasPrefix(identity, "0X") {
		raw, err := hexutil.Decode("0x" + identity[2:])
		if err != nil {
			return account, fmt.Errorf("invalid hex account id %q: %w", identity, err)
		}
		if len(raw) != AccountIDLength {
			return account, fmt.Errorf("hex account id %q is %d bytes, expected %d", identity, len(raw), AccountIDLength)
		}
		copy(account[:], raw)
		return account, nil
	}

	_, account, err := DecodeSS58(identity)
	return account, err
}

// CanonicalAccountID returns the lowercase 0x hex form of an identity if it decodes as an account id.
// Identities which are not account ids are returned trimmed but otherwise unchanged.
func CanonicalAccountID(identity string) string {
	account, err := DecodeAccountID(identity)
	if err != nil {
		return strings.TrimSpace(identity)
	}
	return hexutil.Encode(account[:])
}

func ss58Checksum(body []byte) [blake2b.Size]byte {
	preimage := make([]byte, 0, len(ss58ChecksumPreimage)+len(body))
	preimage = append(preimage, ss58ChecksumPreimage...)
	preimage = append(preimage, body...)
	return blake2b.Sum512(preimage)
}
