package receipt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// Domain separation prefixes for leaf and interior node hashing.
const (
	leafPrefix = "apexgov:receipt:leaf:v1"
	nodePrefix = "apexgov:receipt:node:v1"
)

// leafHash hashes one receipt leaf with the receipt id as its path.
func leafHash(receiptID string, canonical []byte) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(receiptID)
	buf.WriteByte(0)
	buf.Write(canonical)
	return sha256Hex(buf.Bytes())
}

// merkleRoot folds leaf hashes bottom-up, duplicating the last node on
// odd levels. An empty leaf set has an empty root.
func merkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	level := make([]string, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = nodeHash(level[i], level[i+1])
		}
		level = next
	}
	return level[0]
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
