// Package pipeline runs one unlock batch end to end.
//
// Run discovers locked files, takes the single-run lock, runs preflight,
// opens one browser session, hands the files to the unlock orchestrator,
// closes the session, and only then deletes the originals whose unlocked
// replacement landed in the music directory. Each batch is recorded in the
// history store and optionally announced through ntfy.
//
// The browser session is injected through Options.OpenSession so tests can
// drive the whole batch against a fake service without Playwright.
package pipeline
