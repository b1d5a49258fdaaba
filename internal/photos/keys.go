package photos

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// allowedExtensions is the image allow-list. Anything else is stored without
// an extension instead of being rejected.
var allowedExtensions = map[string]string{
	"png":  ".png",
	"jpg":  ".jpg",
	"jpeg": ".jpeg",
	"webp": ".webp",
	"gif":  ".gif",
}

// TenantPrefix returns the key prefix owning every object of a famille.
func TenantPrefix(familleID int64) string {
	return "famille-" + strconv.FormatInt(familleID, 10)
}

// Extension returns the lowercased allow-listed extension of fileName
// (with its dot), or "" when the extension is missing or not allowed.
func Extension(fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(fileName)), ".")
	return allowedExtensions[ext]
}

// KeyGenerator builds object keys of the form
// famille-{id}/{unix millis}-{6 base36 chars}{ext}.
type KeyGenerator struct {
	Now    func() time.Time
	Random func() [16]byte
}

// NewKeyGenerator returns a generator using the wall clock and random UUIDs.
func NewKeyGenerator() KeyGenerator {
	return KeyGenerator{
		Now:    time.Now,
		Random: func() [16]byte { return uuid.New() },
	}
}

// Key returns a fresh object key for a file of famille familleID.
// Uniqueness is probabilistic only.
func (g KeyGenerator) Key(familleID int64, fileName string) string {
	now := g.Now
	if now == nil {
		now = time.Now
	}
	random := g.Random
	if random == nil {
		random = func() [16]byte { return uuid.New() }
	}
	return fmt.Sprintf("%s/%d-%s%s", TenantPrefix(familleID), now().UnixMilli(), suffix(random()), Extension(fileName))
}

func suffix(src [16]byte) string {
	var b [6]byte
	for i := range b {
		b[i] = suffixAlphabet[int(src[i])%len(suffixAlphabet)]
	}
	return string(b[:])
}

// baseName returns the last path segment of key.
func baseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
