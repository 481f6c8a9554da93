package protocol

// Client -> server frame types.
const (
	// Session
	MethodSend     = "send"
	MethodHealth   = "health"
	MethodAgents   = "agents"
	MethodHistory  = "history"
	MethodClear    = "clear"
	MethodDiff     = "diff"
	MethodDiffFull = "diff_full"
	MethodQueue    = "queue"
	MethodMode     = "mode"
	MethodPreview  = "preview"

	// PTY terminals
	MethodPtySpawn  = "pty_spawn"
	MethodPtyInput  = "pty_input"
	MethodPtyResize = "pty_resize"
	MethodPtyKill   = "pty_kill"
	MethodPtyList   = "pty_list"
	MethodPtyScreen = "pty_screen"

	// RPC agent sessions
	MethodRPCNew    = "rpc_new"
	MethodRPCPrompt = "rpc_prompt"
	MethodRPCAbort  = "rpc_abort"
	MethodRPCKill   = "rpc_kill"
	MethodRPCList   = "rpc_list"

	// Teams
	MethodTeamsList       = "teams_list"
	MethodTeamsCreate     = "teams_create"
	MethodTeamsSpawn      = "teams_spawn"
	MethodTeamsTaskUpdate = "teams_task_update"
	MethodTeamsMessage    = "teams_message"
	MethodTeamsBroadcast  = "teams_broadcast"
	MethodTeamsWatch      = "teams_watch"
	MethodTeamsUnwatch    = "teams_unwatch"
	MethodTeamsDelete     = "teams_delete"

	// Threads
	MethodThreadLaunch    = "thread_launch"
	MethodThreadList      = "thread_list"
	MethodThreadKill      = "thread_kill"
	MethodThreadAbort     = "thread_abort"
	MethodThreadSteer     = "thread_steer"
	MethodThreadPreset    = "thread_preset"
	MethodThreadAgents    = "thread_agents"
	MethodThreadAsyncList = "thread_async_list"
)

// Server -> client frame types.
const (
	// Connection and session turns
	EventHello        = "hello"
	EventUserMessage  = "user_message"
	EventChunk        = "chunk"
	EventAgentStart   = "agent_start"
	EventAgentEnd     = "agent_end"
	EventTurnComplete = "turn_complete"
	EventQueued       = "queued"

	// Request replies
	EventAgents   = "agents"
	EventHealth   = "health"
	EventHistory  = "history"
	EventDiff     = "diff"
	EventDiffFull = "diff_full"
	EventQueue    = "queue"
	EventMode     = "mode"
	EventPreview  = "preview"
	EventOK       = "ok"
	EventError    = "error"

	// External bridge
	EventBridge = "bridge_event"

	// PTY terminals
	EventPtyData    = "pty_data"
	EventPtyExit    = "pty_exit"
	EventPtySpawned = "pty_spawned"
	EventPtyList    = "pty_list"
	EventPtyScreen  = "pty_screen"

	// RPC agent sessions
	EventRPCEvent    = "rpc_event"
	EventRPCIdle     = "rpc_idle"
	EventRPCKilled   = "rpc_killed"
	EventRPCCreated  = "rpc_created"
	EventRPCSessions = "rpc_sessions"

	// Teams
	EventTeamsCreated = "teams_created"
	EventTeamsSpawned = "teams_spawned"
	EventTeamsOutput  = "teams_output"
	EventTeamsExit    = "teams_exit"
	EventTeamsTask    = "teams_task"
	EventTeamsTasks   = "teams_tasks"
	EventTeamsMessage = "teams_message"
	EventTeamsList    = "teams_list"

	// Threads
	EventThreadLaunched      = "thread_launched"
	EventThreadEvent         = "thread_event"
	EventThreadIdle          = "thread_idle"
	EventThreadKilled        = "thread_killed"
	EventThreadList          = "thread_list"
	EventThreadPresetPreview = "thread_preset_preview"
	EventThreadAgents        = "thread_agents"
	EventThreadAsyncList     = "thread_async_list"
)
