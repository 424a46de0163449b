package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
)

// HashLength is the length of a generated hash in hex characters.
const HashLength = blake2b.Size256 * 2

// Column limits of stored_files, and the longest extension carried over
// into a generated filename.
const (
	MaxFilenameLength  = 256
	MaxMimeTypeLength  = 128
	MaxExtensionLength = 16
)

// GenerateHash derives a file hash from the record's identifying fields, keyed
// with the site secret and mixed with a random salt so two identical uploads
// never collide.
func GenerateHash(secret string, fields ...string) (string, error) {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("failed to init hash: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read salt: %w", err)
	}
	h.Write(salt)
	for _, f := range fields {
		// length-prefix each field so ("ab","c") and ("a","bc") differ
		fmt.Fprintf(h, "%d:%s|", len(f), f)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GenerateFilename builds the relative storage path for a hash: splitLevels
// directories of splitChars characters each, then the rest of the hash with
// the original file's extension.
func GenerateFilename(hash, originalFilename string, splitLevels, splitChars int) (string, error) {
	if splitLevels < 0 || splitChars < 0 {
		return "", fmt.Errorf("invalid split configuration %d/%d", splitLevels, splitChars)
	}
	prefix := splitLevels * splitChars
	if hash == "" || len(hash) <= prefix {
		return "", fmt.Errorf("hash too short for %d levels of %d characters", splitLevels, splitChars)
	}

	parts := make([]string, 0, splitLevels+1)
	for i := 0; i < splitLevels; i++ {
		parts = append(parts, hash[i*splitChars:(i+1)*splitChars])
	}
	parts = append(parts, hash[prefix:]+Extension(originalFilename))
	return path.Join(parts...), nil
}

// Extension returns the extension of a client-supplied filename, including
// the dot. Leading-dot names have no extension, and extensions longer than
// MaxExtensionLength or with anything but letters and digits are dropped.
func Extension(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	dot := strings.LastIndexByte(filename, '.')
	if dot <= 0 || dot == len(filename)-1 {
		return ""
	}
	if strings.TrimLeft(filename[:dot], ".") == "" {
		return ""
	}
	ext := filename[dot+1:]
	if len(ext) > MaxExtensionLength {
		return ""
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return "." + ext
}

// TruncateFilename cuts name to MaxFilenameLength bytes on a rune boundary,
// keeping its extension.
func TruncateFilename(name string) string {
	if len(name) <= MaxFilenameLength {
		return name
	}
	ext := Extension(name)
	cut := MaxFilenameLength - len(ext)
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + ext
}
