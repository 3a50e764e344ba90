// Package store archives finished transcript messages in a local SQLite
// database so conversations can be listed, resumed, and exported later.
//
// # Schema
//
// A single messages table keyed by message id, with an autoincrement seq
// column that fixes insertion order within a session:
//
//	seq, id, session_id, role, content, metadata_json, created_at
//
// Timestamps are stored as fixed-width UTC text. Metadata (thinking step,
// tool invocations) is stored as the JSON the client produced and is not
// interpreted here.
//
// # Usage
//
//	archive, err := store.NewSQLiteStore(path, logger)
//	defer archive.Close()
//
//	archive.SaveMessage(ctx, &store.Message{...})
//	msgs, err := archive.ListMessages(ctx, sessionID, 50)
//	sessions, err := archive.ListSessions(ctx, 20)
//
// The driver is modernc.org/sqlite (pure Go, no cgo). WAL mode is enabled
// on open.
package store
