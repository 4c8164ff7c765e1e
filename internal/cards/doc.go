// Package cards builds the Adaptive Cards the gateway pushes into Teams.
package cards
