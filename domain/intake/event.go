// Package intake implements Anchored-Event Intake (spec §4.8): dedup,
// event-hash computation, and dispatch to the Projector / Claim Engine /
// Merge Engine, plus the governance-accounting and reconciliation-sweep
// supplements.
package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// AnchoredEvent is the wire shape consumed by intake (spec §6).
type AnchoredEvent struct {
	ContentHash     string `json:"content_hash"`
	Payload         string `json:"payload"`
	BlockNum        uint64 `json:"block_num"`
	BlockID         string `json:"block_id"`
	TrxID           string `json:"trx_id"`
	ActionOrdinal   int    `json:"action_ordinal"`
	Timestamp       int64  `json:"timestamp"`
	Source          string `json:"source"`
	ContractAccount string `json:"contract_account"`
	ActionName      string `json:"action_name"`
}

// ComputeEventHash hashes a canonicalized subset of the event's fields,
// excluding any signature carried inside the payload, so the same event
// always hashes the same way regardless of which node relayed it.
func ComputeEventHash(ev AnchoredEvent) (string, error) {
	canonicalPayload, err := canonicalizePayload(ev.Payload)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	fields := []string{
		ev.ContentHash,
		ev.ActionName,
		ev.BlockID,
		ev.TrxID,
		strconv.Itoa(ev.ActionOrdinal),
		strconv.FormatUint(ev.BlockNum, 10),
		strconv.FormatInt(ev.Timestamp, 10),
		ev.Source,
		ev.ContractAccount,
		canonicalPayload,
	}
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalizePayload strips a top-level "signature" field (if present)
// and re-marshals the result. encoding/json marshals map keys in sorted
// order at every nesting level, so two byte-different-but-equivalent
// payloads (differing only in key order or an attached signature) hash
// identically.
func canonicalizePayload(payload string) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return "", err
	}
	delete(raw, "signature")

	out, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
