package main

import (
	"crypto/rand"
	"encoding/hex"
)

// roomCodeAlphabet excludes confusable characters (0/O, 1/I/L)
const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateRoomCode returns a 6-char human-readable join code
func GenerateRoomCode() string {
	b := make([]byte, 6)
	rand.Read(b)
	out := make([]byte, 6)
	for i, v := range b {
		out[i] = roomCodeAlphabet[int(v)%len(roomCodeAlphabet)]
	}
	return string(out)
}
