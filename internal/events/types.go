// Package events provides event types and subjects for the pibuild event system.
package events

// Event types for session turns
const (
	SessionUserMessage  = "session.user_message"  // User message accepted into a session
	SessionChunk        = "session.chunk"         // Streaming output chunk from an agent
	SessionAgentStart   = "session.agent_start"   // Agent began executing a task
	SessionAgentEnd     = "session.agent_end"     // Agent finished executing a task
	SessionTurnComplete = "session.turn_complete" // Full turn finished, session idle again
	SessionQueued       = "session.queued"        // Message queued behind a running turn
	SessionError        = "session.error"         // Turn failed
)

// Event types for PTY terminals
const (
	PtyData = "pty.data" // Base subject for terminal output
	PtyExit = "pty.exit" // Base subject for terminal process exit
)

// Event types for RPC agent sessions
const (
	RPCEvent  = "rpc.event"  // Base subject for streamed agent session updates
	RPCIdle   = "rpc.idle"   // Base subject for prompt-turn completion
	RPCKilled = "rpc.killed" // Base subject for session termination
)

// Event types for threads
const (
	ThreadLaunched = "thread.launched" // Thread created and started
	ThreadEvent    = "thread.event"    // Base subject for per-thread step events
	ThreadIdle     = "thread.idle"     // Base subject for thread completion
	ThreadKilled   = "thread.killed"   // Base subject for thread termination
)

// Event types for agent teams
const (
	TeamsCreated = "teams.created" // Team materialized on disk
	TeamsSpawned = "teams.spawned" // Coordinator process started for a team
	TeamsOutput  = "teams.output"  // Base subject for spawned team process output
	TeamsExit    = "teams.exit"    // Base subject for spawned team process exit
	TeamsTask    = "teams.task"    // Base subject for task create/update/change events
	TeamsMessage = "teams.message" // Base subject for inbox messages
)

// Event types for the HTTP bridge
const (
	BridgeEvent = "bridge.event" // External event re-broadcast to connected clients
)

// BuildSessionWildcardSubject creates a wildcard subscription for all session turn events
func BuildSessionWildcardSubject() string {
	return "session.>"
}

// BuildPtyDataSubject creates a terminal output subject for a specific terminal
func BuildPtyDataSubject(termID string) string {
	return PtyData + "." + termID
}

// BuildPtyDataWildcardSubject creates a wildcard subscription for all terminal output events
func BuildPtyDataWildcardSubject() string {
	return PtyData + ".*"
}

// BuildPtyExitSubject creates a terminal exit subject for a specific terminal
func BuildPtyExitSubject(termID string) string {
	return PtyExit + "." + termID
}

// BuildPtyExitWildcardSubject creates a wildcard subscription for all terminal exit events
func BuildPtyExitWildcardSubject() string {
	return PtyExit + ".*"
}

// BuildRPCEventSubject creates a session update subject for a specific RPC session
func BuildRPCEventSubject(sessionID string) string {
	return RPCEvent + "." + sessionID
}

// BuildRPCEventWildcardSubject creates a wildcard subscription for all RPC session updates
func BuildRPCEventWildcardSubject() string {
	return RPCEvent + ".*"
}

// BuildRPCIdleSubject creates a turn completion subject for a specific RPC session
func BuildRPCIdleSubject(sessionID string) string {
	return RPCIdle + "." + sessionID
}

// BuildRPCIdleWildcardSubject creates a wildcard subscription for all RPC turn completions
func BuildRPCIdleWildcardSubject() string {
	return RPCIdle + ".*"
}

// BuildRPCKilledSubject creates a termination subject for a specific RPC session
func BuildRPCKilledSubject(sessionID string) string {
	return RPCKilled + "." + sessionID
}

// BuildRPCKilledWildcardSubject creates a wildcard subscription for all RPC session terminations
func BuildRPCKilledWildcardSubject() string {
	return RPCKilled + ".*"
}

// BuildThreadEventSubject creates a step event subject for a specific thread
func BuildThreadEventSubject(threadID string) string {
	return ThreadEvent + "." + threadID
}

// BuildThreadEventWildcardSubject creates a wildcard subscription for all thread step events
func BuildThreadEventWildcardSubject() string {
	return ThreadEvent + ".*"
}

// BuildThreadIdleSubject creates a completion subject for a specific thread
func BuildThreadIdleSubject(threadID string) string {
	return ThreadIdle + "." + threadID
}

// BuildThreadIdleWildcardSubject creates a wildcard subscription for all thread completions
func BuildThreadIdleWildcardSubject() string {
	return ThreadIdle + ".*"
}

// BuildThreadKilledSubject creates a termination subject for a specific thread
func BuildThreadKilledSubject(threadID string) string {
	return ThreadKilled + "." + threadID
}

// BuildThreadKilledWildcardSubject creates a wildcard subscription for all thread terminations
func BuildThreadKilledWildcardSubject() string {
	return ThreadKilled + ".*"
}

// BuildTeamsOutputSubject creates an output subject for a specific team
func BuildTeamsOutputSubject(teamName string) string {
	return TeamsOutput + "." + teamName
}

// BuildTeamsOutputWildcardSubject creates a wildcard subscription for all team output events
func BuildTeamsOutputWildcardSubject() string {
	return TeamsOutput + ".*"
}

// BuildTeamsExitSubject creates an exit subject for a specific team
func BuildTeamsExitSubject(teamName string) string {
	return TeamsExit + "." + teamName
}

// BuildTeamsExitWildcardSubject creates a wildcard subscription for all team exit events
func BuildTeamsExitWildcardSubject() string {
	return TeamsExit + ".*"
}

// BuildTeamsTaskSubject creates a task change subject for a specific team
func BuildTeamsTaskSubject(teamName string) string {
	return TeamsTask + "." + teamName
}

// BuildTeamsTaskWildcardSubject creates a wildcard subscription for all task change events
func BuildTeamsTaskWildcardSubject() string {
	return TeamsTask + ".*"
}

// BuildTeamsMessageSubject creates an inbox message subject for a specific team
func BuildTeamsMessageSubject(teamName string) string {
	return TeamsMessage + "." + teamName
}

// BuildTeamsMessageWildcardSubject creates a wildcard subscription for all inbox messages
func BuildTeamsMessageWildcardSubject() string {
	return TeamsMessage + ".*"
}
