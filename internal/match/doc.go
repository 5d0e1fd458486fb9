// Package match scores rules against the current facts.
//
// A scan walks a half-open range of the sorted rule array once. Each rule's
// contiguous test block is evaluated in a single pass that tracks OR-group
// hits, so a rule costs O(tests) with no allocation. Results land in a
// caller-owned Result sized once per catalog.
//
// Scoring a rule:
//   - an ungrouped test that passes adds 1
//   - an OR-group adds 1 if any member passes, no matter how many do
//   - a failing strict ungrouped test, or an OR-group with no passing
//     member, makes the rule invalid
//
// The best set is every valid rule tied for the highest count, provided the
// count is at least 1. Unless CheckAllRules is set, a rule with fewer tests
// than the current best count is skipped without being evaluated: it could
// not win. Rules are sorted by descending test count inside each bucket so
// this cuts most of the work.
//
// Scanning only reads facts. It is safe to run concurrently with other
// scans as long as nothing writes the facts meanwhile.
package match
