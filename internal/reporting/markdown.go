package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Token Risk Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Tokens | %d |\n", r.Summary.TotalTokens))
	sb.WriteString(fmt.Sprintf("| Analyzed | %d |\n", r.Summary.AnalyzedTokens))
	sb.WriteString(fmt.Sprintf("| Pending | %d |\n", r.Summary.PendingTokens))
	sb.WriteString(fmt.Sprintf("| Chains | %d |\n", r.Summary.Chains))
	sb.WriteString(fmt.Sprintf("| Profiled Deployers | %d |\n", r.Summary.Wallets))
	sb.WriteString(fmt.Sprintf("| Date Range Start (ms) | %d |\n", r.Summary.DateRangeStart))
	sb.WriteString(fmt.Sprintf("| Date Range End (ms) | %d |\n", r.Summary.DateRangeEnd))
	sb.WriteString("\n")

	// Distribution
	sb.WriteString("## Risk Distribution\n\n")
	if len(r.LevelCounts) > 0 {
		sb.WriteString("| Chain | Level | Tokens | Share |\n")
		sb.WriteString("|-------|-------|--------|-------|\n")
		for _, c := range r.LevelCounts {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.1f%% |\n", c.Chain, c.Level, c.Count, c.Share*100))
		}
	} else {
		sb.WriteString("No analyzed tokens.\n")
	}
	sb.WriteString("\n")

	// Tokens
	sb.WriteString(fmt.Sprintf("## Riskiest Tokens (top %d)\n\n", r.TopN))
	if len(r.Tokens) > 0 {
		sb.WriteString("| Chain | Token | Symbol | Contract | Liquidity | Ownership | Deployer | Final | Level | Flags |\n")
		sb.WriteString("|-------|-------|--------|----------|-----------|-----------|----------|-------|-------|-------|\n")
		for _, t := range r.Tokens {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.2f | %.2f | %.2f | %.2f | %.2f | %s | %s |\n",
				t.Chain, t.Address, t.Symbol,
				t.ContractScore, t.LiquidityScore, t.OwnershipScore, t.DeployerScore,
				t.FinalScore, t.Level, strings.Join(t.Flags, "; ")))
		}
	} else {
		sb.WriteString("No analyzed tokens.\n")
	}
	sb.WriteString("\n")

	// Deployers
	sb.WriteString(fmt.Sprintf("## Riskiest Deployers (top %d)\n\n", r.TopN))
	if len(r.Deployers) > 0 {
		sb.WriteString("| Chain | Wallet | Score | Tokens | Suspected Rugs | Age (days) | Cross-chain |\n")
		sb.WriteString("|-------|--------|-------|--------|----------------|------------|-------------|\n")
		for _, d := range r.Deployers {
			cross := "-"
			if d.CrossChain != "" {
				cross = d.CrossChain
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %d | %d | %d | %s |\n",
				d.Chain, d.Address, d.DeployerScore, d.TotalDeployed, d.SuspectedRugs, d.WalletAgeDays, cross))
		}
	} else {
		sb.WriteString("No profiled deployers.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
