// ABOUTME: Pass-through routes from the gateway to the controller API
// ABOUTME: Each route names the upstream path and its error code

package controller

// Route maps a gateway GET path to a controller path.
type Route struct {
	Path         string // gateway path
	Upstream     string // path relative to the controller base URL
	Name         string // used in controller_<name>_unavailable
	ForwardQuery bool
}

// Routes lists the proxied endpoints other than /dashboard/data, which reads
// the metrics URL itself.
var Routes = []Route{
	{Path: "/dashboard/data/risk", Upstream: "risk", Name: "risk", ForwardQuery: true},
	{Path: "/dashboard/data/runs", Upstream: "runs", Name: "runs"},
	{Path: "/dashboard/data/risk/summary", Upstream: "risk/summary", Name: "risk_summary"},
	{Path: "/dashboard/data/operations", Upstream: "operations", Name: "operations"},
	{Path: "/dashboard/data/executive", Upstream: "executive", Name: "executive"},
	{Path: "/controller/tactical", Upstream: "controller/tactical", Name: "tactical"},
	{Path: "/controller/executive", Upstream: "controller/executive", Name: "executive"},
}

// UnavailableCode is the error code returned when the upstream call fails.
func (r Route) UnavailableCode() string {
	return "controller_" + r.Name + "_unavailable"
}
