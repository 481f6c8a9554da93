package teams

import (
	"fmt"
	"time"
)

// Member types the teammate tooling recognizes.
const (
	MemberLead           = "team-lead"
	MemberImplementer    = "team-implementer"
	MemberReviewer       = "team-reviewer"
	MemberDebugger       = "team-debugger"
	MemberGeneralPurpose = "general-purpose"
)

// presetMembers maps each preset name to its member composition. The
// "custom" preset is intentionally absent: it takes caller-supplied
// members.
var presetMembers = map[string][]Member{
	"review": {
		{Name: "reviewer-1", Type: MemberReviewer},
		{Name: "reviewer-2", Type: MemberReviewer},
		{Name: "reviewer-3", Type: MemberReviewer},
	},
	"debug": {
		{Name: "lead", Type: MemberLead},
		{Name: "debugger-1", Type: MemberDebugger},
		{Name: "debugger-2", Type: MemberDebugger},
	},
	"feature": {
		{Name: "lead", Type: MemberLead},
		{Name: "implementer-1", Type: MemberImplementer},
		{Name: "implementer-2", Type: MemberImplementer},
		{Name: "reviewer-1", Type: MemberReviewer},
	},
	"fullstack": {
		{Name: "lead", Type: MemberLead},
		{Name: "implementer-1", Type: MemberImplementer},
		{Name: "implementer-2", Type: MemberImplementer},
		{Name: "reviewer-1", Type: MemberReviewer},
	},
	"research": {
		{Name: "researcher-1", Type: MemberGeneralPurpose},
		{Name: "researcher-2", Type: MemberGeneralPurpose},
		{Name: "researcher-3", Type: MemberGeneralPurpose},
	},
	"security": {
		{Name: "reviewer-1", Type: MemberReviewer},
		{Name: "reviewer-2", Type: MemberReviewer},
		{Name: "reviewer-3", Type: MemberReviewer},
		{Name: "reviewer-4", Type: MemberReviewer},
	},
	"migration": {
		{Name: "lead", Type: MemberLead},
		{Name: "implementer-1", Type: MemberImplementer},
		{Name: "implementer-2", Type: MemberImplementer},
		{Name: "reviewer-1", Type: MemberReviewer},
	},
}

// CreateTeamFromPreset materializes a named preset into a team. An empty
// name auto-generates <preset>-team-<unixms>. The "custom" preset uses the
// caller-supplied members; every other preset ignores them.
func (d *Driver) CreateTeamFromPreset(preset, name string, custom []Member) (*Config, error) {
	var members []Member
	if preset == "custom" {
		if len(custom) == 0 {
			return nil, fmt.Errorf("custom preset requires members")
		}
		members = custom
	} else {
		tmpl, ok := presetMembers[preset]
		if !ok {
			return nil, fmt.Errorf("unknown team preset %q", preset)
		}
		members = append([]Member(nil), tmpl...)
	}

	if name == "" {
		name = fmt.Sprintf("%s-team-%d", preset, time.Now().UnixMilli())
	}
	return d.CreateTeam(name, members)
}
