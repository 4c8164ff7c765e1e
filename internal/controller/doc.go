// Package controller reads the ticketing controller's metrics API so browser
// dashboards can reach it through the gateway. Documents are passed through
// unchanged.
package controller
