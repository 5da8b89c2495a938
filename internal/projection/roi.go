package projection

const (
	bondShare     = 0.6
	platformShare = 0.4
)

// ROIBreakdown splits a headline return into its bond and platform parts.
type ROIBreakdown struct {
	BondPercent     float64 `json:"bond_percent"`
	PlatformPercent float64 `json:"platform_percent"`
	TotalPercent    float64 `json:"total_percent"`
}

func ROIBreakdownFor(totalPercent float64) ROIBreakdown {
	return ROIBreakdown{
		BondPercent:     totalPercent * bondShare,
		PlatformPercent: totalPercent * platformShare,
		TotalPercent:    totalPercent,
	}
}
