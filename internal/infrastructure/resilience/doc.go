/*
Package resilience provides the circuit breaker guarding calls to the
school platform API.

# Overview

When the backend keeps failing, the breaker opens and calls fail fast with
ErrCircuitOpen instead of piling up retries behind a slow upstream.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Configurable failure thresholds and timeouts
- Automatic state transitions
- Error classification so client errors do not count as failures
- State change callbacks for logging
- Injectable clock for tests

# Usage

	// Create a circuit breaker
	breaker := resilience.New("school-api", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	err := breaker.Execute(func() error {
		resp, err = req.Post("/api/auth/login")
		return err
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, limited requests allowed

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
