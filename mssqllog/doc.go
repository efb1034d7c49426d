// Package mssqllog reconstructs SQL INSERT/DELETE/UPDATE statements from the
// raw on-disk artifacts of an offline Microsoft SQL Server database: the
// primary data file (MDF) and its transaction log (LDF).
//
// Both files are treated as read-only byte streams. The package walks MDF
// pages to rebuild the system catalog and the physical row layout of every
// user table, walks the LDF's Virtual Log Files to recover log records, and
// joins the two to emit SQL text plus BEGIN/COMMIT timestamps.
package mssqllog
