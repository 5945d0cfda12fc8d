package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders token rows as CSV string. Flags are joined with "|".
func RenderCSV(rows []TokenRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("chain,address,symbol,deployer,contract_score,liquidity_score,ownership_score,")
	sb.WriteString("deployer_score,final_score,risk_level,flags,analyzed_at\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%.2f,%.2f,%.2f,%.2f,%.2f,%s,%s,%d\n",
			r.Chain,
			r.Address,
			csvField(r.Symbol),
			r.Deployer,
			r.ContractScore,
			r.LiquidityScore,
			r.OwnershipScore,
			r.DeployerScore,
			r.FinalScore,
			r.Level,
			csvField(strings.Join(r.Flags, "|")),
			r.AnalyzedAt,
		))
	}

	return sb.String()
}

// csvField quotes free text that may contain separators.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
