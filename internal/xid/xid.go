package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns a short prefixed identifier such as "ORD-1F3A9C0B7D2E".
func New(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(raw[:12]))
}
