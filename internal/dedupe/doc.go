// Package dedupe drops Bot Framework activities that are delivered more than
// once within a configurable window.
package dedupe
