package ledger

import _ "embed"

// Schema is the idempotent DDL for the ledger tables.
//
//go:embed schema.sql
var Schema string
