// Package db embeds the orders schema.
package db

import _ "embed"

// Schema holds the idempotent DDL for the orders table.
//
//go:embed migrations/001_schema.sql
var Schema string
