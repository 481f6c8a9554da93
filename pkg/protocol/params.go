package protocol

// SendParams carries the user message for a conversational turn.
type SendParams struct {
	Message string `json:"message"`
}

// ModeParams switches the session between execute and plan.
type ModeParams struct {
	Mode string `json:"mode"`
}

// PreviewParams asks the gateway to echo a preview URL to all clients.
type PreviewParams struct {
	URL string `json:"url"`
}

// PtySpawnParams configures a new terminal. The terminal id travels as
// termId so it cannot collide with the frame correlation id; an empty
// termId asks the manager to mint one.
type PtySpawnParams struct {
	TermID  string            `json:"termId,omitempty"`
	AgentID string            `json:"agentId"`
	Cmd     []string          `json:"cmd"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cols    int               `json:"cols,omitempty"`
	Rows    int               `json:"rows,omitempty"`
}

// PtyInputParams forwards keystrokes to a terminal.
type PtyInputParams struct {
	TermID string `json:"termId"`
	Data   string `json:"data"`
}

// PtyResizeParams resizes a terminal.
type PtyResizeParams struct {
	TermID string `json:"termId"`
	Cols   int    `json:"cols"`
	Rows   int    `json:"rows"`
}

// PtyIDParams addresses a terminal by id (kill, screen).
type PtyIDParams struct {
	TermID string `json:"termId"`
}

// RPCNewParams creates a long-lived agent session.
type RPCNewParams struct {
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd,omitempty"`
}

// RPCPromptParams forwards a prompt to an agent session.
type RPCPromptParams struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// RPCIDParams addresses an agent session by id (abort, kill).
type RPCIDParams struct {
	SessionID string `json:"sessionId"`
}

// TeamsNameParams addresses a team by name (watch, unwatch, delete).
type TeamsNameParams struct {
	Name string `json:"name"`
}

// TeamsCreateParams creates a team, either from explicit members or from a
// named preset. Members are objects with name/type/model fields.
type TeamsCreateParams struct {
	Name    string                   `json:"name,omitempty"`
	Preset  string                   `json:"preset,omitempty"`
	Members []map[string]interface{} `json:"members,omitempty"`
}

// TeamsSpawnParams starts the coordinator process for a team.
type TeamsSpawnParams struct {
	Name          string `json:"name"`
	InitialPrompt string `json:"initialPrompt,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Cwd           string `json:"cwd,omitempty"`
}

// TeamsTaskUpdateParams creates a task when taskId is empty, otherwise
// merge-patches the existing task file.
type TeamsTaskUpdateParams struct {
	Name   string                 `json:"name"`
	TaskID string                 `json:"taskId,omitempty"`
	Task   map[string]interface{} `json:"task"`
}

// TeamsMessageParams writes one message into a member's inbox.
type TeamsMessageParams struct {
	Name    string `json:"name"`
	Type    string `json:"msgType,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
	Summary string `json:"summary,omitempty"`
}

// TeamsBroadcastParams messages every member except the sender.
type TeamsBroadcastParams struct {
	Name    string `json:"name"`
	From    string `json:"from"`
	Content string `json:"content"`
	Summary string `json:"summary,omitempty"`
}

// ThreadStep is one step of a chain or parallel thread launch.
type ThreadStep struct {
	Agent  string   `json:"agent"`
	Task   string   `json:"task"`
	Output string   `json:"output,omitempty"`
	Reads  []string `json:"reads,omitempty"`
	Model  string   `json:"model,omitempty"`
}

// ThreadLaunchParams describes a thread to launch, either inline or by
// preset+target.
type ThreadLaunchParams struct {
	ThreadType  string       `json:"threadType,omitempty"`
	Task        string       `json:"task,omitempty"`
	Agent       string       `json:"agent,omitempty"`
	Steps       []ThreadStep `json:"steps,omitempty"`
	Agents      []string     `json:"agents,omitempty"`
	Cwd         string       `json:"cwd,omitempty"`
	SkipClarify bool         `json:"skipClarify,omitempty"`
	Async       bool         `json:"async,omitempty"`
	Preset      string       `json:"preset,omitempty"`
	Target      string       `json:"target,omitempty"`
}

// ThreadIDParams addresses a thread by id (kill, abort).
type ThreadIDParams struct {
	ThreadID string `json:"threadId"`
}

// ThreadSteerParams redirects a running thread with a new prompt.
type ThreadSteerParams struct {
	ThreadID string `json:"threadId"`
	Message  string `json:"message"`
}

// ThreadPresetParams previews a preset's compiled command for a target.
type ThreadPresetParams struct {
	Preset string `json:"preset"`
	Target string `json:"target"`
}
