package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashDoc computes the canonical content hash of a decoded canon document.
// encoding/json.Marshal already serializes map[string]interface{} keys in
// sorted lexicographic order and emits no insignificant whitespace, so the
// canonical byte form is simply the marshaled, NFC-normalized tree (via
// golang.org/x/text/unicode/norm, the same normalization step
// pkg/kernel/csnf.go's transformString applies before hashing); see
// original_source/apps/api/worldbuild_api/util.py's canonical_json_bytes
// for the semantics this mirrors.
func HashDoc(doc map[string]interface{}) string {
	normalized := normalizeTree(doc)
	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
