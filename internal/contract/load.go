package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// requiredSections are the top-level keys a contract document must carry.
var requiredSections = []string{
	"vocabulary",
	"routing_rules",
	"mapping_rules",
	"module_definitions",
	"canonical_registry",
}

// LoadFile reads, validates, and materializes a contract document.
// sourceIDs is the set of ids known to the source registry; routing rules
// may only reference those.
func LoadFile(path, contractID string, sourceIDs []string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contract: %w", err)
	}
	return Load(data, contractID, sourceIDs)
}

// Load parses and validates contract bytes. Any gate failure aborts before
// a Contract exists; nothing downstream ever sees a partially-valid
// contract.
func Load(data []byte, contractID string, sourceIDs []string) (*Contract, error) {
	// Gate 1 needs key presence, which a struct unmarshal can't observe.
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse contract: %w", err)
	}
	for _, section := range requiredSections {
		if _, ok := raw[section]; !ok {
			return nil, &GateError{Gate: GateSections, Ref: section,
				Err: fmt.Errorf("missing required section %q", section)}
		}
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}

	c := &Contract{
		ID:   contractID,
		Doc:  doc,
		Hash: contentHash(doc),
	}
	if err := validate(c, sourceIDs); err != nil {
		return nil, err
	}
	return c, nil
}

// contentHash is sha256 over the canonical JSON re-serialization of the
// parsed document. encoding/json sorts map keys, so formatting-only edits
// to the YAML never change the hash.
func contentHash(doc Document) string {
	canonical, err := json.Marshal(doc)
	if err != nil {
		// Document is plain data; marshal cannot fail in practice.
		panic(fmt.Sprintf("contract: canonical marshal: %v", err))
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
