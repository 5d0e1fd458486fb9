package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainCatalog prefixes catalog hashes. The version suffix changes when
// the hashed encoding does.
const DomainCatalog = "quip/catalog/v1"

// Hash returns a content hash of c: SHA-256 over the catalog's JSON
// encoding with domain separation. Struct fields encode in declaration
// order and the catalog holds no maps, so equal catalogs hash equal.
//
// Fact snapshots record the hash of the catalog they were taken under.
func Hash(c *Catalog) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("hash catalog: %w", err)
	}
	return hashWithDomain(DomainCatalog, data), nil
}

// hashWithDomain computes SHA256(domain + 0x00 + data). The separator
// keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
