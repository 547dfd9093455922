// Package ledger persists the per-output-directory record of what the last
// export produced and decides which of those records can be reused.
//
// A Ledger is a JSON array stored beside the artifacts it describes. Each
// Record names one compiled source, the digests of every file that went into
// it, the digest of the artifact written, and the transform identity under
// which it was built. A Record is reusable only when all three still match.
package ledger
