// Package ipc exposes the database gateway across the process boundary as
// three named channels: db:query, db:execute, and db:transaction. Requests
// are JSON over HTTP; errors carry a machine-readable code discriminator so
// callers can distinguish validation, security, execution, and protocol
// failures without parsing messages.
//
// Parameters are JSON scalars: null, booleans, numbers, and strings map
// directly, and byte sequences travel as a tagged {"$base64": "..."} object
// since JSON has no binary scalar. Blob columns in results come back as plain
// base64 strings.
package ipc
