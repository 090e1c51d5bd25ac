// Package receipt generates zkPC receipts: signed, canonically hashed
// snapshots proving a verdict was rendered under a known constitution,
// without disclosing request contents. Receipts chain into a running
// Merkle root for batch attestation.
package receipt

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apexgov/core/pkg/canonicalize"
	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/crypto"
)

// Snapshot is the judgment state a receipt commits to. Only hashes of
// the request surfaces are carried, never the raw task or params.
type Snapshot struct {
	Task             string                `json:"-"`
	ParamsHash       string                `json:"params_hash"`
	ContextHash      string                `json:"context_hash"`
	TaskHash         string                `json:"task_hash"`
	Verdict          contracts.Verdict     `json:"verdict"`
	ApexPulse        float64               `json:"apex_pulse"`
	ReasonCodes      []string              `json:"reason_codes"`
	FloorTriggered   []string              `json:"floor_triggered"`
	ActionClass      contracts.ActionClass `json:"action_class"`
	ConstitutionHash string                `json:"constitution_hash"`
	Timestamp        string                `json:"timestamp"`
}

// Receipt is the signed proof-of-process artifact.
type Receipt struct {
	ReceiptID        string                `json:"receipt_id"`
	ProofHash        string                `json:"proof_hash"`
	Verdict          contracts.Verdict     `json:"verdict"`
	ApexPulse        float64               `json:"apex_pulse"`
	ReasonCodes      []string              `json:"reason_codes"`
	FloorTriggered   []string              `json:"floor_triggered"`
	ActionClass      contracts.ActionClass `json:"action_class"`
	ParamsHash       string                `json:"params_hash"`
	ContextHash      string                `json:"context_hash"`
	TaskHash         string                `json:"task_hash"`
	ConstitutionHash string                `json:"constitution_hash"`
	Timestamp        string                `json:"timestamp"`
	Signature        string                `json:"signature"`
	SignerPublicKey  string                `json:"signer_public_key"`
	MerkleLeaf       string                `json:"merkle_leaf"`
	MerkleRoot       string                `json:"merkle_root"`
}

// Generator mints receipts with one signer and accumulates the Merkle
// root across all receipts it has issued.
type Generator struct {
	signer crypto.Signer
	now    func() time.Time

	mu     sync.Mutex
	leaves []string
	root   string
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithNow overrides the time source. Test hook.
func WithNow(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a Generator backed by signer.
func NewGenerator(signer crypto.Signer, opts ...GeneratorOption) *Generator {
	g := &Generator{
		signer: signer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate mints a receipt for one judgment snapshot. The task text is
// hashed before it enters the proof object.
func (g *Generator) Generate(snap Snapshot) (Receipt, error) {
	if snap.Timestamp == "" {
		snap.Timestamp = g.now().Format(time.RFC3339Nano)
	}
	if snap.TaskHash == "" {
		snap.TaskHash = canonicalize.HashBytes([]byte(snap.Task))
	}
	snap.Task = ""

	canonical, err := canonicalize.JCS(snap)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt: canonicalize snapshot: %w", err)
	}
	proofHash := canonicalize.HashBytes(canonical)
	receiptID := "zkpc_" + proofHash[:12]

	signature, err := g.signer.Sign(canonical)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt: sign: %w", err)
	}

	leaf := leafHash(receiptID, canonical)
	g.mu.Lock()
	g.leaves = append(g.leaves, leaf)
	g.root = merkleRoot(g.leaves)
	root := g.root
	g.mu.Unlock()

	return Receipt{
		ReceiptID:        receiptID,
		ProofHash:        proofHash,
		Verdict:          snap.Verdict,
		ApexPulse:        snap.ApexPulse,
		ReasonCodes:      snap.ReasonCodes,
		FloorTriggered:   snap.FloorTriggered,
		ActionClass:      snap.ActionClass,
		ParamsHash:       snap.ParamsHash,
		ContextHash:      snap.ContextHash,
		TaskHash:         snap.TaskHash,
		ConstitutionHash: snap.ConstitutionHash,
		Timestamp:        snap.Timestamp,
		Signature:        signature,
		SignerPublicKey:  g.signer.PublicKey(),
		MerkleLeaf:       leaf,
		MerkleRoot:       root,
	}, nil
}

// Root returns the current accumulated Merkle root.
func (g *Generator) Root() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.root
}

// Verify recomputes the proof hash from the receipt's committed fields
// and checks the detached signature. It does not need the request.
func Verify(r Receipt) (bool, error) {
	if !strings.HasPrefix(r.ReceiptID, "zkpc_") {
		return false, fmt.Errorf("receipt: malformed id %q", r.ReceiptID)
	}
	snap := Snapshot{
		ParamsHash:       r.ParamsHash,
		ContextHash:      r.ContextHash,
		TaskHash:         r.TaskHash,
		Verdict:          r.Verdict,
		ApexPulse:        r.ApexPulse,
		ReasonCodes:      r.ReasonCodes,
		FloorTriggered:   r.FloorTriggered,
		ActionClass:      r.ActionClass,
		ConstitutionHash: r.ConstitutionHash,
		Timestamp:        r.Timestamp,
	}
	canonical, err := canonicalize.JCS(snap)
	if err != nil {
		return false, fmt.Errorf("receipt: canonicalize: %w", err)
	}
	if canonicalize.HashBytes(canonical) != r.ProofHash {
		return false, nil
	}
	return crypto.Verify(r.SignerPublicKey, r.Signature, canonical)
}
