package plugin

// Capability names one discrete permission a plugin may request access to.
type Capability string

const (
	CapabilityCollectData       Capability = "collect-data"
	CapabilityReadOwnData       Capability = "read-own-data"
	CapabilityLocalStorage      Capability = "local-storage"
	CapabilityExportData        Capability = "export-data"
	CapabilityMicrophoneAccess  Capability = "microphone-access"
	CapabilityShowNotifications Capability = "show-notifications"
)

// TrustLevel classifies where a plugin comes from. Officially bundled plugins
// are treated as pre-trusted and skip the explicit grant dialog.
type TrustLevel string

const (
	TrustOfficial   TrustLevel = "official"
	TrustThirdParty TrustLevel = "third-party"
)

// Sensitivity classifies the data a plugin records.
type Sensitivity string

const (
	SensitivityPublic    Sensitivity = "public"
	SensitivityNormal    Sensitivity = "normal"
	SensitivityPrivate   Sensitivity = "private"
	SensitivitySensitive Sensitivity = "sensitive"
)

// AccessScope restricts which records a plugin may read back.
type AccessScope string

// ScopeOwnData is the only supported scope: a plugin sees its own records only.
const ScopeOwnData AccessScope = "own-data-only"

// RetentionPolicy tags how long recorded data is kept.
type RetentionPolicy string

const RetentionUserControlled RetentionPolicy = "user-controlled"

// DataShape classifies how a plugin's entries aggregate over time.
type DataShape string

const (
	ShapeCumulative DataShape = "cumulative"
	ShapeComposite  DataShape = "composite"
	ShapeOccurrence DataShape = "occurrence"
	ShapeDuration   DataShape = "duration"
	ShapeText       DataShape = "text"
)

// State represents the lifecycle position of a registered plugin.
type State string

const (
	StateRegistered  State = "registered"
	StateInitialised State = "initialised"
	StateActive      State = "active"
	StateStopped     State = "stopped"
)

// Metadata contains static descriptive data for a plugin implementation.
type Metadata struct {
	Name         string
	Description  string
	Version      string
	Category     string
	Tags         []string
	Shape        DataShape
	PrimaryInput InputKind
	Related      []string
	ExportFormat string
	Sensitivity  Sensitivity
	Aliases      []string
	Triggers     []string
}

// SecurityManifest declares the permissions and data handling rules a plugin
// commits to. It is created once at plugin construction and never mutated.
type SecurityManifest struct {
	Capabilities  []Capability
	Sensitivity   Sensitivity
	Scope         AccessScope
	PrivacyPolicy string
	Retention     RetentionPolicy
}

// Requests reports whether the manifest asks for the given capability.
func (m SecurityManifest) Requests(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
