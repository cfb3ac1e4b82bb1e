// Package toolrunner executes external optimization tools in a hardened
// subprocess environment.
//
// Arguments that look like managed file paths are re-validated through
// pathguard before every launch, the child environment is rebuilt from a
// small allow-list, and no shell is ever involved. Non-zero exits are
// pattern-matched against known failure signatures so stages receive a
// classified, user-safe error alongside the retained technical detail.
package toolrunner
