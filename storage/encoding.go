package storage

import (
	"encoding/binary"
	"fmt"
)

// Persistent key-value backends store each document as an eight byte
// big-endian version followed by the raw value.
const versionPrefixLen = 8

func encodeRecord(version uint64, value []byte) []byte {
	buf := make([]byte, versionPrefixLen+len(value))
	binary.BigEndian.PutUint64(buf[:versionPrefixLen], version)
	copy(buf[versionPrefixLen:], value)
	return buf
}

func decodeRecord(path string, raw []byte) (Document, error) {
	if len(raw) < versionPrefixLen {
		return Document{}, fmt.Errorf("storage: truncated record at %s", path)
	}
	return Document{
		Path:    path,
		Version: binary.BigEndian.Uint64(raw[:versionPrefixLen]),
		Value:   append([]byte(nil), raw[versionPrefixLen:]...),
	}, nil
}
