package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random id, for example "sale-3f2a9c4e1b7d".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s", prefix, id[:12])
}

// ApprovalNumber formats a tax invoice approval number from a fresh uuid.
func ApprovalNumber(date string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s-%s", date, id[:8], id[8:16])
}
