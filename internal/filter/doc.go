// Package filter decides which candidate releases pass the configured rule
// chain and at what priority tier.
//
// A rule chain is a ">"-delimited sequence of boolean expressions over named
// predicates, highest priority tier first. Predicates are static
// include/exclude regexp pairs tested against the release title and
// description. Configuration mismatches (unknown predicate names, malformed
// tiers) degrade to "does not match" and are only visible through logs.
package filter
