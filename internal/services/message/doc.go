// Package message composes and parses chat lines and sanitises user input.
//
// A chat line is "sender|HH:mm:ss|text". Text is stripped of the characters
// <>"'%;()&+ before it is formatted; file names keep only [A-Za-z0-9._-],
// with every other character replaced by '_'.
package message
