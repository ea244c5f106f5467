// Package preflight provides readiness checks for the directories and remote
// endpoints aum depends on.
//
// These checks run in two contexts:
//   - The batch runner calls RunAll after taking the run lock and before
//     opening a browser session. Any failure aborts the run with nothing
//     submitted and nothing deleted.
//   - The CLI "aum check" command prints the same results as a table.
//
// Hub checks depend on the configured mode; local mode has no hub to reach.
package preflight
