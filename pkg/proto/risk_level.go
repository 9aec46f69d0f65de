// Package proto holds wire-level types shared between the tool-approval
// policy and (previously) the edge-device protocol. The edge/protobuf
// transport itself was dropped (see DESIGN.md); RiskLevel is kept as a plain
// Go enum since internal/tools/policy's approval workflow still keys its
// risk-based auto-approval rules off it.
package proto

// RiskLevel classifies how much latitude a tool call is given before it
// requires explicit approval.
type RiskLevel int32

const (
	RiskLevel_RISK_LEVEL_UNSPECIFIED RiskLevel = iota
	RiskLevel_RISK_LEVEL_LOW
	RiskLevel_RISK_LEVEL_MEDIUM
	RiskLevel_RISK_LEVEL_HIGH
	RiskLevel_RISK_LEVEL_CRITICAL
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLevel_RISK_LEVEL_LOW:
		return "low"
	case RiskLevel_RISK_LEVEL_MEDIUM:
		return "medium"
	case RiskLevel_RISK_LEVEL_HIGH:
		return "high"
	case RiskLevel_RISK_LEVEL_CRITICAL:
		return "critical"
	default:
		return "unspecified"
	}
}
