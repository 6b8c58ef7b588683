package devlog

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// NoteDedupeWindow is how far back providers look for an identical note
// before storing a new one.
const NoteDedupeWindow = 5 * time.Minute

// ContentHash is a blake3 digest of the note's category and its content
// with case and whitespace normalized. Two notes with the same hash are
// the same note re-sent.
func (n *Note) ContentHash() string {
	normalized := strings.ToLower(strings.Join(strings.Fields(n.Content), " "))
	sum := blake3.Sum256([]byte(string(n.Category) + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}
