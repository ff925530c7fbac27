package observe

import "time"

type Status string

const (
	StatusGreen  Status = "GREEN"
	StatusYellow Status = "YELLOW"
	StatusRed    Status = "RED"
)

type Reason string

const (
	ReasonEvidenceRecorded    Reason = "evidence_recorded"
	ReasonEvidenceAbsent      Reason = "evidence_absent"
	ReasonEvidenceCompromised Reason = "evidence_compromised"
)

type BadgeState string

const (
	BadgeNoEvidence       BadgeState = "NoEvidence"
	BadgeEvidenceRecorded BadgeState = "EvidenceRecorded"
	BadgeCertified        BadgeState = "Certified"
)

type ArtifactKind string

const (
	KindPointerFile     ArtifactKind = "PointerFile"
	KindCertificateFile ArtifactKind = "CertificateFile"
	KindUnknown         ArtifactKind = "Unknown"
)

// EvidenceArtifact is one file located during a scan. Artifacts are built
// fresh on every scan and never persisted directly.
type EvidenceArtifact struct {
	Kind        ArtifactKind `json:"kind"`
	Path        string       `json:"path"`
	ContentHash string       `json:"content_hash"`
}

// Certificate is the parsed CFIC artifact. When Valid is false the reason
// tag identifies the first failed validation step and no other field carries
// trusted metadata.
type Certificate struct {
	Valid     bool      `json:"valid"`
	Reason    string    `json:"reason,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	IssuedAt  time.Time `json:"issued_at,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type Verdict struct {
	Status            Status   `json:"status"`
	Reason            Reason   `json:"reason"`
	CriticalOmissions int      `json:"critical_omissions"`
	Primary           []string `json:"primary"`
	Regression        bool     `json:"regression,omitempty"`
}

type SignedPointer struct {
	PointerID         string   `json:"pointer_id"`
	Schema            string   `json:"schema"`
	Version           string   `json:"version"`
	ObservedAt        string   `json:"observed_at"`
	Repository        string   `json:"repository"`
	CommitSHA         string   `json:"commit_sha,omitempty"`
	Branch            string   `json:"branch,omitempty"`
	Status            Status   `json:"status"`
	Reason            Reason   `json:"reason"`
	EvidenceFound     []string `json:"evidence_found"`
	CriticalOmissions int      `json:"critical_omissions"`
	ObservationHash   string   `json:"observation_hash"`
	Signature         string   `json:"signature,omitempty"`
	SignerKeyID       string   `json:"signer_key_id,omitempty"`
	RegistryEligible  bool     `json:"registry_eligible"`
}

type TraceEntry struct {
	SchemaID      string        `json:"schema_id"`
	SchemaVersion string        `json:"schema_version"`
	Sequence      int64         `json:"sequence"`
	RecordedAt    time.Time     `json:"recorded_at"`
	Pointer       SignedPointer `json:"pointer"`
	ChainHash     string        `json:"chain_hash"`
}

// VerdictRecord is the serialized verdict plus engine metadata written under
// the verdicts directory after every run.
type VerdictRecord struct {
	Schema            string   `json:"schema"`
	Timestamp         string   `json:"timestamp"`
	Context           string   `json:"context"`
	Status            Status   `json:"status"`
	Reason            Reason   `json:"reason"`
	PrimaryFound      []string `json:"primary_found"`
	CriticalOmissions int      `json:"critical_omissions"`
	ArtifactsChecked  []string `json:"artifacts_checked"`
	Regression        bool     `json:"regression,omitempty"`
	Host              string   `json:"host"`
	RunID             string   `json:"run_id"`
}

type BadgeMetadata struct {
	Schema        string `json:"schema"`
	GeneratedAt   string `json:"generated_at"`
	Status        Status `json:"status"`
	Reason        Reason `json:"reason"`
	Certified     bool   `json:"certified"`
	BadgeSVG      string `json:"badge_svg"`
	BadgeURL      string `json:"badge_url"`
	EmbedMarkdown string `json:"embed_markdown"`
	BadgeHash     string `json:"badge_hash"`
}
