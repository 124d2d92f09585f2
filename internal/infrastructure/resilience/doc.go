/*
Package resilience provides a circuit breaker for upstream fetches.

# Overview

A Breaker moves between three states:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open

Group keys breakers by upstream host. Context cancellation is not counted
as a failure, because the controller cancels fetches it has superseded.

# Usage

	group := resilience.NewGroup("fetch", resilience.Settings{Timeout: 30 * time.Second})
	resp, err := resilience.Do(group.Get(host), func() (*resty.Response, error) {
		return req.Get(target)
	})
*/
package resilience
