// Package browser provides the Playwright-backed browser session used to
// submit files to the unlock web service.
//
// A session can reach its browser four ways: through a Selenium Grid hub
// (Playwright's SELENIUM_REMOTE_URL bridge), a Playwright server websocket,
// a Chrome DevTools endpoint, or a locally launched Chromium. Uploads are
// streamed by Playwright, so the browser node does not need to see the
// music directory. Downloads are saved into a local directory owned by the
// session, written under a ".part" name and renamed once complete.
package browser
