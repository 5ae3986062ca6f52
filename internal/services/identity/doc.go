// Package identity holds the local peer's presentation policy: display name
// validation and the issuing and checking of shared tokens.
//
// Display names are embedded in every chat line as "name|HH:mm:ss|text", so
// they must not contain the '|' separator or control characters.
package identity
