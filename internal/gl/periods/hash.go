package periods

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// CloseHashVersion identifies the canonical serialization used for close
// hashes. Bump only with a migration plan; stored hashes are an audit contract.
const CloseHashVersion = 1

// ComputeCloseHash produces the deterministic fingerprint sealed into a period
// at closure. Inputs are joined with "|" in a fixed order, integers rendered in
// base-10 ASCII, and the SHA-256 digest hex-encoded.
func ComputeCloseHash(tenantID string, periodID uuid.UUID, journalCount, totalDebitsMinor, totalCreditsMinor, balanceRowCount int64) string {
	var b strings.Builder
	b.WriteString(tenantID)
	b.WriteByte('|')
	b.WriteString(periodID.String())
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(journalCount, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(totalDebitsMinor, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(totalCreditsMinor, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(balanceRowCount, 10))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
