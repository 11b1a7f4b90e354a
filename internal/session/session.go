// Package session mirrors live connection state to Redis. The coordinator's
// in-memory tables stay authoritative; the mirror exists so the surrounding
// CRUD/API layer can answer "who is online and in which room" without
// reaching into the realtime process.
package session
