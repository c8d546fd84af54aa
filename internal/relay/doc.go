// Package relay implements the in-memory message routing core as a set of
// actors: one registry owning the user table, one aggregator per user name
// owning that user's sessions, and one bridge per transport connection. Each
// actor serializes all mutation of its own state through a bounded mailbox;
// there is no shared mutable memory and no locks. Handles are send-only
// capabilities onto an actor's mailbox and never expose the state behind it.
package relay
