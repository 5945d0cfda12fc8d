package ingestion

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"sentinel-ledger/internal/chain"
	"sentinel-ledger/internal/domain"
)

var erc20MetadataABI = chain.MustParseABI(`[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`)

// readMetadata fills name, symbol and decimals where the calls succeed.
// Tokens returning bytes32 metadata are left unset.
func (p *BlockProcessor) readMetadata(ctx context.Context, address common.Address, t *domain.Token) {
	c := chain.NewContract(p.client, address, erc20MetadataABI)

	if v, err := c.Call(ctx, "name"); err == nil {
		if s, ok := v[0].(string); ok {
			t.Name = &s
		}
	} else {
		p.logger.Debug().Err(err).Str("address", t.Address).Msg("name() unreadable")
	}

	if v, err := c.Call(ctx, "symbol"); err == nil {
		if s, ok := v[0].(string); ok {
			t.Symbol = &s
		}
	}

	if v, err := c.Call(ctx, "decimals"); err == nil {
		if d, ok := v[0].(uint8); ok {
			t.Decimals = &d
		}
	}
}
