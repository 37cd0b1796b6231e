package db

import "embed"

// MigrationFS embeds the account_links and link_audit_log schema.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
