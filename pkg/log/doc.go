/*
Package log provides structured logging for ballast using zerolog.

The package wraps github.com/rs/zerolog with a single package-level Logger,
initialized once via Init, plus component-scoped child loggers. Components
derive their loggers from that package-level Logger with WithComponent: the
LoadBalancer once in New, the Worker, hedge policy and health prober per
call. The circuit breaker, rate limiters and hash ring do not log.

# Levels

Debug, Info, Warn, Error, mapped 1:1 onto zerolog's levels. There is no
custom level above Error; a component that cannot recover from a condition
returns an error instead of logging-and-panicking.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("breaker").With().Str("name", "payments-api").Logger()
	logger.Warn().Msg("breaker tripped")
*/
package log
