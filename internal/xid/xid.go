package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var derivedNamespace = uuid.MustParse("6f1c7a52-3c1e-4c1b-9a0e-2f6d3f8b1c55")

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Derived returns a stable id for records the upstream sent without one.
// Identical parts always give the same id.
func Derived(parts ...string) string {
	return uuid.NewSHA1(derivedNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}
