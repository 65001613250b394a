// Package router is a pure function from (exchange, routing-key, headers,
// task-name) to an ordered set of destination queues (spec §4.2).
//
// Topic/headers matching is a direct port of the original platform's
// MessageBroker._match_topic / _match_headers
// (_examples/original_source/code/iteration346_message_broker.py), extended
// to satisfy the spec's segment-by-segment greedy-with-lookahead
// requirement for non-terminal '#'.
package router

import (
	"strings"

	"dispatch.evalgo.org/topology"
)

// UnroutableReason classifies why routing produced no destinations
// (spec §4.2 Failure).
type UnroutableReason string

const (
	ReasonNone             UnroutableReason = ""
	ReasonNoExchange       UnroutableReason = "no-exchange"
	ReasonNoBindingMatch   UnroutableReason = "no-binding-match"
	ReasonStrandedQueue    UnroutableReason = "stranded-queue"
)

// Result is the outcome of a routing computation.
type Result struct {
	Queues []string
	Reason UnroutableReason
}

// Route computes destination queues for a publish on (exchange, routingKey,
// headers). taskName, if non-empty, additionally consults Route rules
// (spec §4.2 step 5).
func Route(snap *topology.Snapshot, exchangeName, routingKey string, headers map[string]string, taskName string) Result {
	ex, ok := snap.Exchange(exchangeName)
	if !ok {
		return Result{Reason: ReasonNoExchange}
	}

	bindings := snap.ListBindingsFrom(ex.Name)
	var dests []string
	seen := make(map[string]struct{})

	for _, b := range bindings {
		if !matchBinding(ex.Kind, b, routingKey, headers) {
			continue
		}
		if _, dup := seen[b.Destination]; dup {
			continue
		}
		seen[b.Destination] = struct{}{}
		dests = append(dests, b.Destination)
	}

	if taskName != "" {
		if rule := firstActiveRoute(snap, taskName); rule != "" {
			dests = appendUnique(dests, seen, rule)
		} else if t, ok := snap.Task(taskName); ok && t.TargetQueue != "" {
			dests = appendUnique(dests, seen, t.TargetQueue)
		}
	}

	// A publish nothing matched is retried once on the exchange's
	// alternate, if it names a declared one.
	if alt, hasAlt := snap.Exchange(ex.Alternate); len(dests) == 0 && ex.Alternate != "" && hasAlt {
		for _, b := range snap.ListBindingsFrom(alt.Name) {
			if matchBinding(alt.Kind, b, routingKey, headers) {
				dests = appendUnique(dests, seen, b.Destination)
			}
		}
	}

	if len(dests) == 0 {
		return Result{Reason: ReasonNoBindingMatch}
	}
	return Result{Queues: dests}
}

func appendUnique(dests []string, seen map[string]struct{}, name string) []string {
	if _, dup := seen[name]; dup {
		return dests
	}
	seen[name] = struct{}{}
	return append(dests, name)
}

// firstActiveRoute returns the queue of the highest-priority route rule
// matching taskName (ties broken lexicographically by rule id, spec §4.2).
func firstActiveRoute(snap *topology.Snapshot, taskName string) string {
	matches := snap.ListRoutesMatching(taskName)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Queue
}

func matchBinding(kind topology.ExchangeKind, b topology.Binding, routingKey string, headers map[string]string) bool {
	switch kind {
	case topology.ExchangeDirect:
		return b.RoutingKey == routingKey
	case topology.ExchangeFanout:
		return true
	case topology.ExchangeTopic:
		return MatchTopic(b.Pattern, routingKey)
	case topology.ExchangeHeaders:
		return MatchHeaders(b.HeadersSelector, b.HeadersPairs, headers)
	default:
		return false
	}
}

// MatchTopic implements the topic-pattern grammar (spec §6, bit-exact):
// segments separated by '.'; '*' matches exactly one segment; '#' matches
// zero or more trailing segments, greedily, with lookahead. Ported from
// the original Python's two-pointer scan (_match_topic), which returns
// true the instant '#' is reached — confirming Open Question #2 (a
// trailing '#' matches zero remaining segments too).
func MatchTopic(pattern, routingKey string) bool {
	patternParts := strings.Split(pattern, ".")
	keyParts := strings.Split(routingKey, ".")
	return matchTopicSegments(patternParts, keyParts)
}

func matchTopicSegments(pattern, key []string) bool {
	i, j := 0, 0
	for i < len(pattern) && j < len(key) {
		switch pattern[i] {
		case "#":
			// '#' matches zero-or-more trailing segments; try every
			// possible split point so a literal segment after '#' can
			// still be honored (general, non-terminal '#' support beyond
			// the original's terminal-only fast path).
			if i == len(pattern)-1 {
				return true
			}
			for k := j; k <= len(key); k++ {
				if matchTopicSegments(pattern[i+1:], key[k:]) {
					return true
				}
			}
			return false
		case "*":
			i++
			j++
		default:
			if pattern[i] != key[j] {
				return false
			}
			i++
			j++
		}
	}
	// consume trailing '#' that can legitimately match zero segments
	for i < len(pattern) && pattern[i] == "#" {
		i++
	}
	return i == len(pattern) && j == len(key)
}

// MatchHeaders implements the x-match=all|any predicate over K=V pairs
// (spec §3, §4.2), ported from the original's _match_headers counting loop.
func MatchHeaders(selector topology.HeadersMatch, bindingPairs map[string]string, envelopeHeaders map[string]string) bool {
	if len(bindingPairs) == 0 {
		return selector == topology.HeadersMatchAll // vacuously true for "all", false for "any"
	}
	matches := 0
	for k, v := range bindingPairs {
		if envelopeHeaders[k] == v {
			matches++
		}
	}
	if selector == topology.HeadersMatchAll {
		return matches == len(bindingPairs)
	}
	return matches > 0
}
