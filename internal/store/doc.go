// Package store provides SQLite-backed storage for a repository's commit
// graph, its bookmarks and the side tables a push writes to.
//
// The store holds:
//   - Changesets: content-addressed commits with their parents, generation
//     number and public/draft phase
//   - Bookmarks: named pointers into the graph, public or scratch
//   - Bookmark update log: one row per bookmark move, with replay data
//   - Globalrevs: monotonically increasing numbers assigned by pushrebase
//   - Mutation entries: amend/rebase history uploaded by clients
//   - Reverse filler queue: raw bundles awaiting replay to a sibling repo
//
// # Bookmark Transactions
//
// Bookmark moves are compare-and-swap: a Transaction records the expected
// old target of every bookmark it touches and Commit applies all of them or
// none. A lost race is reported as (false, nil) rather than an error, so
// callers can tell contention apart from storage failures. Changesets added
// to a transaction become durable in the same SQLite transaction as the
// bookmark moves that make them reachable.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
