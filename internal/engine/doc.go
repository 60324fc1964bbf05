// Package engine applies resolved unbundle actions to a repository.
//
// An upstream resolver turns a client bundle into exactly one
// PostResolveAction. ResolveAndApply admits it through the commit rate
// limiter, runs the matching strategy and returns a strategy-tagged
// UnbundleResponse:
//
//   - PostResolvePush: plain push, at most one public bookmark move.
//   - PostResolveInfinitePush: scratch push, optional scratch bookmark move.
//   - PostResolvePushRebase: normal pushrebase onto a public bookmark, or a
//     force pushrebase to an explicit target.
//   - PostResolveBookmarkOnlyPushRebase: a bookmark move with no commits.
//
// Every bookmark transition goes through the bookmarks package, so hooks
// run before any write and the compare-and-swap transaction is the only
// ordering between concurrent pushes. A lost race is reported as a
// ResolverError with code RACE and is never retried here.
//
// Commit logging and bundle preservation are side effects. They run
// detached from the request's cancellation once the bookmark has moved,
// their failures are logged and counted but never returned, and Wait
// blocks until the ones in flight are done.
package engine
