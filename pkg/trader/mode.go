package trader

import (
	"strings"

	"github.com/gregtusar/gswap-trader/pkg/models"
)

// ResolveMode is the one place that decides between simulated and real
// trading. Missing credentials are not an error, they select simulation.
func ResolveMode(walletAddress, privateKey string, forceSimulated bool) models.Mode {
	if forceSimulated || strings.TrimSpace(walletAddress) == "" || strings.TrimSpace(privateKey) == "" {
		return models.ModeSimulated
	}
	return models.ModeReal
}
