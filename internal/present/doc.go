// Package present renders proposals and poll results as chat messages.
//
// Everything here is pure: the same inputs always produce the same text, and
// every rendered message fits the platform's length cap.
package present
