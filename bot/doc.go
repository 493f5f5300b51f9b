// Package bot ties the betting pieces together.
//
// A Bot owns the round state and the cached own balance and mutates them
// from a single goroutine (Run). That goroutine handles inbound chat lines,
// completions of asynchronous gateway calls and the periodic tick:
//
//   - lines from the tracked betting bot are parsed and applied to the round;
//     "all" bets are resolved through the balance gateway first
//   - lines from the bot's own account may carry manual bet commands
//   - other lines and whispers that mention the account are shown on the console
//   - each tick farms when due, force-closes stale rounds and, once the betting
//     delay has passed, decides and queues the bot's own wager
//
// Plan is the pure part of the tick and can be tested without a Bot.
package bot
