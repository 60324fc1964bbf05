// Package harness runs end-to-end unbundle scenarios.
//
// A scenario describes a repository config, a commit graph by label, the
// initial repository state and a sequence of resolved pushes. The harness
// drives each push through the engine against a fresh in-memory store and
// checks the outcome of every step.
//
// # Scenario Format
//
//	name: pushrebase_conflicts
//	description: "What this scenario validates"
//	config:
//	  name: fbsource
//	  bookmarks:
//	    - name: main
//	      only_fast_forward: true
//	commits:
//	  - label: root
//	    files: [README]
//	  - label: x
//	    parents: [root]
//	    files: [x.txt]
//	setup:
//	  public: [root]
//	  bookmarks: { main: root }
//	steps:
//	  - action: pushrebase
//	    bookmark: main
//	    commits: [x]
//	    expect:
//	      outcome: OK
//	assertions:
//	  - type: bookmark
//	    bookmark: main
//	    at: x'
//
// Pushrebased copies are labelled with a trailing quote, so x' above is
// the rebased x.
//
// # Assertion Types
//
//   - bookmark: the bookmark points at a label, or is absent
//   - history: the bookmark's update log reasons, newest first
//   - public: the commit is public (or not, with absent)
//   - stored: the commit is stored (or not, with absent)
//
// # Deterministic Testing
//
// Every run uses testutil.DeterministicClock and a fixed request id, and
// trace snapshots name commits by label, so snapshots are stable and can be
// compared against golden files with RunWithGolden.
package harness
