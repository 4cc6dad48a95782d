package collector

import "github.com/qepting91/reddit-link-harvester/internal/domain"

// Listing views of a community.
var (
	Newest   = domain.Endpoint{Sort: "new"}
	TopDay   = domain.Endpoint{Sort: "top", TimeWindow: "day"}
	TopWeek  = domain.Endpoint{Sort: "top", TimeWindow: "week"}
	TopMonth = domain.Endpoint{Sort: "top", TimeWindow: "month"}
	TopYear  = domain.Endpoint{Sort: "top", TimeWindow: "year"}
	Hot      = domain.Endpoint{Sort: "hot"}
	Rising   = domain.Endpoint{Sort: "rising"}
)

// FullPlan is the sweep order used for backfills. Newest goes first so the
// time-ordered view claims a post before the ranked views see it.
func FullPlan() []domain.Endpoint {
	return []domain.Endpoint{Newest, TopDay, TopWeek, TopMonth, TopYear, Hot, Rising}
}

// IncrementalPlan only needs the time-ordered view.
func IncrementalPlan() []domain.Endpoint {
	return []domain.Endpoint{Newest}
}

// TimeOrdered reports whether items of ep arrive newest first, which makes
// a creation-time cutoff a valid early-stop signal.
func TimeOrdered(ep domain.Endpoint) bool {
	return ep.Sort == Newest.Sort
}
