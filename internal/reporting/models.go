package reporting

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/zeebo/blake3"
)

// Destination identifies which ad tech a reporting URI or beacon belongs to.
// Values are bit flags so a single event can target both sides.
type Destination int

const (
	DestinationSeller Destination = 1 << iota
	DestinationBuyer
)

func (d Destination) String() string {
	switch d {
	case DestinationSeller:
		return "seller"
	case DestinationBuyer:
		return "buyer"
	default:
		return "unknown"
	}
}

// AdSelectionConfig is the seller-supplied auction configuration the caller
// passes back when reporting.
type AdSelectionConfig struct {
	Seller                   string            `json:"seller"`
	DecisionLogicURI         string            `json:"decision_logic_uri"`
	CustomAudienceBuyers     []string          `json:"custom_audience_buyers"`
	AdSelectionSignals       string            `json:"ad_selection_signals"`
	SellerSignals            string            `json:"seller_signals"`
	PerBuyerSignals          map[string]string `json:"per_buyer_signals"`
	TrustedScoringSignalsURI string            `json:"trusted_scoring_signals_uri"`
}

// ConfigHash returns the deterministic identifier used to key dev overrides.
// encoding/json orders map keys, so equal configs always hash equally. Empty
// and absent collections hash the same.
func (c AdSelectionConfig) ConfigHash() string {
	if len(c.CustomAudienceBuyers) == 0 {
		c.CustomAudienceBuyers = nil
	}
	if len(c.PerBuyerSignals) == 0 {
		c.PerBuyerSignals = nil
	}
	b, _ := json.Marshal(c)
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ContextualSignals is an opaque JSON blob captured during the auction,
// optionally tagged with the data version of the trusted signals it came from.
type ContextualSignals struct {
	JSON        string `json:"json"`
	DataVersion *int64 `json:"data_version,omitempty"`
}

// CustomAudienceSignals describes the winning custom audience. It is nil for
// contextual ads, which have no buyer-side reporting.
type CustomAudienceSignals struct {
	Owner              string    `json:"owner"`
	Buyer              string    `json:"buyer"`
	Name               string    `json:"name"`
	ActivationTime     time.Time `json:"activation_time"`
	ExpirationTime     time.Time `json:"expiration_time"`
	UserBiddingSignals string    `json:"user_bidding_signals"`
}

// AdSelectionRecord is the persisted result of a completed auction.
type AdSelectionRecord struct {
	ID                      int64
	Seller                  string
	WinningBuyer            string
	WinningRenderURI        string
	WinningBid              float64
	SellerContextualSignals ContextualSignals
	BuyerContextualSignals  ContextualSignals
	CustomAudience          *CustomAudienceSignals
	BiddingLogicURI         string
	BuyerDecisionLogicJS    string
	CallerPackage           string
	CreatedAt               time.Time
}

// InteractionBeacon is one registerAdBeacon entry. Beacons are kept as an
// ordered slice so caps truncate in declaration order.
type InteractionBeacon struct {
	Key string
	URI string
}

// RegisteredBeacon is a persisted beacon row. (AdSelectionID, Key,
// Destination) is unique.
type RegisteredBeacon struct {
	AdSelectionID int64
	Key           string
	Destination   Destination
	URI           string
}

// ScriptResult is what a reportResult or reportWin invocation produced.
type ScriptResult struct {
	Status          int
	ReportingURI    string
	SignalsForBuyer string
	Beacons         []InteractionBeacon
}

// ScriptKind selects the entry point invoked by the executor.
type ScriptKind int

const (
	ScriptReportResult ScriptKind = iota
	ScriptReportWin
)

func (k ScriptKind) FunctionName() string {
	if k == ScriptReportWin {
		return "reportWin"
	}
	return "reportResult"
}

// ScriptInput is everything a reporting script may read.
type ScriptInput struct {
	Kind   ScriptKind
	Script string

	// reportResult
	Config    AdSelectionConfig
	RenderURI string
	Bid       float64

	// reportWin
	AdSelectionSignals string
	PerBuyerSignals    string
	SignalsForBuyer    string
	CustomAudience     *CustomAudienceSignals

	ContextualSignals   ContextualSignals
	BeaconsEnabled      bool
	MaxBeaconsPerAdTech int64
}

// DevContext carries the caller's developer-mode state.
type DevContext struct {
	DevOptionsEnabled bool
	CallerPackage     string
}

// ReportImpressionInput is a single reporting request.
type ReportImpressionInput struct {
	AdSelectionID int64
	Config        AdSelectionConfig
	CallerPackage string
	Foreground    bool
	Dev           DevContext
}

// AdSelectionOverride replaces the seller's decision logic for one config.
type AdSelectionOverride struct {
	ConfigID              string
	AppPackage            string
	DecisionLogicJS       string
	TrustedScoringSignals string
}

// CustomAudienceOverride replaces a buyer's bidding logic for one audience.
type CustomAudienceOverride struct {
	Owner                 string
	Buyer                 string
	Name                  string
	AppPackage            string
	BiddingLogicJS        string
	TrustedBiddingSignals string
}
