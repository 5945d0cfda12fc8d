package domain

// ProcessedBlock is the per-chain resumption checkpoint.
// Corresponds to processed_blocks table in PostgreSQL, one row per chain.
type ProcessedBlock struct {
	Chain       string
	BlockNumber uint64
	BlockHash   string
	ProcessedAt int64 // ms
}

// SkippedBlock records a block the listener could not fetch or process.
// Corresponds to skipped_blocks table in PostgreSQL.
type SkippedBlock struct {
	Chain       string
	BlockNumber uint64
	Reason      string
	Attempts    int
	SkippedAt   int64  // ms, first failure
	ResolvedAt  *int64 // ms, nullable until a retry succeeds
}
