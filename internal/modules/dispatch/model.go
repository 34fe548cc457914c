// README: Dispatch outcomes, queue keys and tuning constants.
package dispatch

import "time"

type Result string

const (
	ResultAssigned Result = "assigned"
	ResultNoDriver Result = "no_driver"
	ResultSkipped  Result = "skipped"
	ResultError    Result = "error"
)

const (
	queueKey    = "dispatch:queue"
	retryKey    = "dispatch:retry"
	attemptsKey = "dispatch:attempts"

	// popTimeout bounds each BRPOP so workers notice shutdown.
	popTimeout = time.Second
	// relayBatch is the most outbox rows moved per relay tick.
	relayBatch = 100
)
