package checkout

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderNumberLayout = "20060102150405"

// NewOrderNumber renders PED-yyyyMMddHHmmss-XXXXXX with an uppercase random suffix.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "PED-" + now.UTC().Format(orderNumberLayout) + "-" + suffix
}
