// Package repository defines the data access interfaces for Marginalia.
//
// This package provides the repository abstraction layer for persisting
// and retrieving annotations and their comment threads. The actual
// implementation is in the sqlite subpackage.
//
// # Repository Interface
//
// The Repository interface defines all data access methods: scoped
// annotation CRUD, filtered listing, the full-sync prune primitive, and
// standalone comment operations.
//
// # SQLite Implementation
//
// The sqlite implementation provides a complete repository using SQLite
// with WAL mode for concurrency. It handles:
//
// - Upsert-by-id writes with scope stamping
// - Comment-set replacement on every annotation save
// - Cascade deletion of comments in dependency order, transactionally
// - The empty-keep-set edge of the prune protocol
//
// # Schema Migration
//
// The sqlite repository automatically migrates the schema on startup,
// adding columns introduced after the first release (konvaString, docId,
// username) with safe defaults so stores written by older versions keep
// working, and creating the listing indexes afterwards.
package repository
