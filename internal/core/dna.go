package core

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"unitledger/pkg/domain"
)

// DeriveDNA hashes seed, caller, and callIndex into a payload with a 128-bit BLAKE2b digest.
func DeriveDNA(seed []byte, caller domain.AccountID, callIndex uint32) (domain.DNA, error) {
	h, err := blake2b.New(domain.DNALength, nil)
	if err != nil {
		return domain.DNA{}, fmt.Errorf("blake2b: %w", err)
	}
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], callIndex)
	h.Write(seed)
	h.Write([]byte(caller))
	h.Write(idx[:])
	var dna domain.DNA
	copy(dna[:], h.Sum(nil))
	return dna, nil
}

// CombineDNA takes each bit from a where the selector bit is set and from b otherwise.
func CombineDNA(selector, a, b domain.DNA) domain.DNA {
	var child domain.DNA
	for i := range child {
		child[i] = (selector[i] & a[i]) | (^selector[i] & b[i])
	}
	return child
}
