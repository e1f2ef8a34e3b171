package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// enables future algorithm migration.
const (
	DomainDelta = "warden/delta/v1"
	DomainAudit = "warden/audit/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DeltaHash computes the content-addressed identity of an object delta.
// Logically equal deltas hash identically regardless of construction
// order; the hash is used to deduplicate audit payloads.
func DeltaHash(d *ObjectDelta) (string, error) {
	if d == nil {
		return "", fmt.Errorf("DeltaHash: nil delta")
	}
	canonical, err := MarshalCanonical(d.toCanonicalMap())
	if err != nil {
		return "", fmt.Errorf("DeltaHash: %w", err)
	}
	return hashWithDomain(DomainDelta, canonical), nil
}

// AuditEventID computes the content-addressed identity of an audit event.
// The store relies on this for idempotent audit writes: replaying the same
// run stage produces the same ID and the duplicate insert is a no-op.
func AuditEventID(requestID, stage string, wave int, seq int64, payload map[string]any) (string, error) {
	obj := map[string]any{
		"request_id": requestID,
		"stage":      stage,
		"wave":       wave,
		"seq":        seq,
	}
	if payload != nil {
		obj["payload"] = payload
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("AuditEventID: %w", err)
	}
	return hashWithDomain(DomainAudit, canonical), nil
}
