package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `
	address, chain, deployer, deploy_block, deploy_tx, deployed_at, bytecode_hash,
	name, symbol, decimals,
	contract_score, liquidity_score, ownership_score, deployer_score, final_score,
	risk_level, flags, explanation, analyzed_at, created_at
`

// Insert adds a newly classified token. Returns ErrDuplicateKey if (address, chain) exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" || t.Chain == "" {
		return storage.ErrInvalidInput
	}

	level := t.RiskLevel
	if level == "" {
		level = domain.RiskUnknown
	}

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := s.pool.Exec(ctx, query,
		t.Address, t.Chain, t.Deployer, int64(t.DeployBlock), t.DeployTx, t.DeployedAt, t.BytecodeHash,
		t.Name, t.Symbol, decimalsToDB(t.Decimals),
		t.ContractScore, t.LiquidityScore, t.OwnershipScore, t.DeployerScore, t.FinalScore,
		string(level), nonNilStrings(t.Flags), t.Explanation, t.AnalyzedAt, t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// Get retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) Get(ctx context.Context, address, chain string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE address = $1 AND chain = $2`

	t, err := scanToken(s.pool.QueryRow(ctx, query, address, chain))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// Exists reports whether a token row exists for (address, chain).
func (s *TokenStore) Exists(ctx context.Context, address, chain string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tokens WHERE address = $1 AND chain = $2)`,
		address, chain,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check token exists: %w", err)
	}
	return exists, nil
}

// ListByDeployer returns all tokens deployed by deployer on chain.
func (s *TokenStore) ListByDeployer(ctx context.Context, deployer, chain string) ([]*domain.Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE deployer = $1 AND chain = $2
		ORDER BY deploy_block ASC, address ASC
	`

	rows, err := s.pool.Query(ctx, query, deployer, chain)
	if err != nil {
		return nil, fmt.Errorf("list tokens by deployer: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// ListPending returns up to limit never-analyzed tokens, oldest first.
func (s *TokenStore) ListPending(ctx context.Context, limit int) ([]*domain.Token, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE analyzed_at IS NULL
		ORDER BY created_at ASC, chain ASC, address ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tokens: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// ListDeployers returns the distinct deployer addresses seen on chain.
func (s *TokenStore) ListDeployers(ctx context.Context, chain string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT deployer FROM tokens WHERE chain = $1 ORDER BY deployer`, chain)
	if err != nil {
		return nil, fmt.Errorf("list deployers: %w", err)
	}
	defer rows.Close()

	deployers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("iterate deployer rows: %w", err)
	}
	return deployers, nil
}

// ListAll returns every token.
func (s *TokenStore) ListAll(ctx context.Context) ([]*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens ORDER BY chain ASC, deploy_block ASC, address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// updateTokenAnalysis writes the scoring outcome onto an existing token row.
func updateTokenAnalysis(ctx context.Context, db dbtx, t *domain.Token) error {
	tag, err := db.Exec(ctx, `
		UPDATE tokens
		SET contract_score = $3,
		    liquidity_score = $4,
		    ownership_score = $5,
		    deployer_score = $6,
		    final_score = $7,
		    risk_level = $8,
		    flags = $9,
		    explanation = COALESCE($10, explanation),
		    analyzed_at = $11
		WHERE address = $1 AND chain = $2
	`,
		t.Address, t.Chain,
		t.ContractScore, t.LiquidityScore, t.OwnershipScore, t.DeployerScore, t.FinalScore,
		string(t.RiskLevel), nonNilStrings(t.Flags), t.Explanation, t.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("update token analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func decimalsToDB(d *uint8) *int16 {
	if d == nil {
		return nil
	}
	v := int16(*d)
	return &v
}

// scanToken scans a single row into a Token.
func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var deployBlock int64
	var decimals *int16
	var level string

	err := row.Scan(
		&t.Address, &t.Chain, &t.Deployer, &deployBlock, &t.DeployTx, &t.DeployedAt, &t.BytecodeHash,
		&t.Name, &t.Symbol, &decimals,
		&t.ContractScore, &t.LiquidityScore, &t.OwnershipScore, &t.DeployerScore, &t.FinalScore,
		&level, &t.Flags, &t.Explanation, &t.AnalyzedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.DeployBlock = uint64(deployBlock)
	t.RiskLevel = domain.RiskLevel(level)
	if decimals != nil {
		d := uint8(*decimals)
		t.Decimals = &d
	}
	return &t, nil
}

// scanTokens scans multiple rows.
func scanTokens(rows pgx.Rows) ([]*domain.Token, error) {
	var tokens []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}
	return tokens, nil
}
