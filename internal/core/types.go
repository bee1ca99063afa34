// Package core defines the domain types shared by every component of
// Worldbuild Arena: the match, its challenge and canon documents, turn
// outputs, patches, and the event envelope that ties them together.
package core

import "time"

// TeamID identifies one of the two teams deliberating in a match.
type TeamID string

const (
	TeamA TeamID = "A"
	TeamB TeamID = "B"
)

// Role is one of the four fixed agent roles. Roles are never configurable
// per match; every team is always ARCHITECT, LOREKEEPER, CONTRARIAN,
// SYNTHESIZER.
type Role string

const (
	RoleArchitect   Role = "ARCHITECT"
	RoleLorekeeper  Role = "LOREKEEPER"
	RoleContrarian  Role = "CONTRARIAN"
	RoleSynthesizer Role = "SYNTHESIZER"
)

// AllRoles lists the four roles in the canonical order votes are collected.
var AllRoles = []Role{RoleArchitect, RoleLorekeeper, RoleContrarian, RoleSynthesizer}

// TurnType enumerates the kinds of contribution a turn can carry.
type TurnType string

const (
	TurnProposal   TurnType = "PROPOSAL"
	TurnObjection  TurnType = "OBJECTION"
	TurnResponse   TurnType = "RESPONSE"
	TurnResolution TurnType = "RESOLUTION"
	TurnVote       TurnType = "VOTE"
)

// VoteChoice is a single participant's vote on a round's resolution.
type VoteChoice string

const (
	VoteAccept VoteChoice = "ACCEPT"
	VoteAmend  VoteChoice = "AMEND"
	VoteReject VoteChoice = "REJECT"
)

// VoteResult is the aggregated outcome of a round's vote tally.
type VoteResult string

const (
	ResultAccept   VoteResult = "ACCEPT"
	ResultAmend    VoteResult = "AMEND"
	ResultReject   VoteResult = "REJECT"
	ResultDeadlock VoteResult = "DEADLOCK"
)

// MatchStatus is the lifecycle state of a match record.
type MatchStatus string

const (
	MatchRunning   MatchStatus = "running"
	MatchCompleted MatchStatus = "completed"
	MatchFailed    MatchStatus = "failed"
)

// PatchOpKind is one of the RFC-6902 operations this system supports.
type PatchOpKind string

const (
	PatchAdd     PatchOpKind = "add"
	PatchRemove  PatchOpKind = "remove"
	PatchReplace PatchOpKind = "replace"
	PatchMove    PatchOpKind = "move"
	PatchCopy    PatchOpKind = "copy"
	PatchTest    PatchOpKind = "test"
)

// PatchOp is a single JSON-Pointer-addressed mutation.
type PatchOp struct {
	Op    PatchOpKind `json:"op"`
	Path  string      `json:"path"`
	From  string      `json:"from,omitempty"`
	Value any         `json:"value,omitempty"`
}

// Patch is an ordered sequence of patch operations applied atomically.
type Patch []PatchOp

// Vote is a participant's ballot on a round's resolution.
type Vote struct {
	Choice           VoteChoice `json:"choice" validate:"required,oneof=ACCEPT AMEND REJECT"`
	AmendmentSummary string     `json:"amendment_summary,omitempty"`
}

// TurnOutput is the structured result of a single agent turn.
type TurnOutput struct {
	SpeakerRole Role     `json:"speaker_role" validate:"required,oneof=ARCHITECT LOREKEEPER CONTRARIAN SYNTHESIZER"`
	TurnType    TurnType `json:"turn_type" validate:"required,oneof=PROPOSAL OBJECTION RESPONSE RESOLUTION VOTE"`
	Content     string   `json:"content" validate:"required"`
	CanonPatch  Patch    `json:"canon_patch,omitempty"`
	References  []string `json:"references,omitempty"`
	Vote        *Vote    `json:"vote,omitempty" validate:"omitempty"`
}

// Landmark is one of the three fixed points of interest in a canon.
type Landmark struct {
	Name         string `json:"name" validate:"required"`
	Description  string `json:"description" validate:"required"`
	Significance string `json:"significance" validate:"required"`
	VisualKey    string `json:"visual_key" validate:"required"`
}

// Inhabitants describes the people or creatures who live in the world.
type Inhabitants struct {
	Appearance          string `json:"appearance" validate:"required"`
	CultureSnapshot     string `json:"culture_snapshot" validate:"required"`
	RelationshipToPlace string `json:"relationship_to_place" validate:"required"`
}

// Tension describes the world's central conflict.
type Tension struct {
	Conflict            string `json:"conflict" validate:"required"`
	Stakes              string `json:"stakes" validate:"required"`
	VisualManifestation string `json:"visual_manifestation" validate:"required"`
}

// Canon is the structured fictional-world document one team converges on.
type Canon struct {
	WorldName            string      `json:"world_name" validate:"required"`
	GoverningLogic       string      `json:"governing_logic" validate:"required"`
	AestheticMood        string      `json:"aesthetic_mood" validate:"required"`
	Landmarks            []Landmark  `json:"landmarks" validate:"len=3,dive"`
	Inhabitants          Inhabitants `json:"inhabitants"`
	Tension              Tension     `json:"tension"`
	HeroImageDescription string      `json:"hero_image_description" validate:"required"`
}

// Challenge is the match's deterministic seed-derived creative constraint.
type Challenge struct {
	Seed            int64  `json:"seed"`
	Tier            int    `json:"tier" validate:"required,oneof=1 2 3"`
	BiomeSetting    string `json:"biome_setting" validate:"required"`
	Inhabitants     string `json:"inhabitants" validate:"required"`
	TwistConstraint string `json:"twist_constraint" validate:"required"`
}

// Match is the top-level record of one deliberation run.
type Match struct {
	ID          string      `json:"match_id"`
	Seed        int64       `json:"seed"`
	Tier        int         `json:"tier"`
	Status      MatchStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Challenge   *Challenge  `json:"challenge,omitempty"`
	CanonHashA  string      `json:"canon_hash_a,omitempty"`
	CanonHashB  string      `json:"canon_hash_b,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// MatchSummary is the compact read-model returned from the matches list
// and match-creation endpoints.
type MatchSummary struct {
	MatchID     string      `json:"match_id"`
	Status      MatchStatus `json:"status"`
	Seed        int64       `json:"seed"`
	Tier        int         `json:"tier"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// MatchDetail is the full read-model for a single match, built from the
// persisted match record.
type MatchDetail struct {
	MatchSummary
	Challenge  *Challenge `json:"challenge,omitempty"`
	CanonHashA string     `json:"canon_hash_a,omitempty"`
	CanonHashB string     `json:"canon_hash_b,omitempty"`
}

// PromptSpec is one generated image-prompt entry.
type PromptSpec struct {
	Title          string `json:"title" validate:"required"`
	Prompt         string `json:"prompt" validate:"required"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
}

// PromptPack is the complete set of image prompts derived from a final canon.
type PromptPack struct {
	HeroImage          PromptSpec    `json:"hero_image"`
	LandmarkTriptych   [3]PromptSpec `json:"landmark_triptych"`
	InhabitantPortrait PromptSpec    `json:"inhabitant_portrait"`
	TensionSnapshot    PromptSpec    `json:"tension_snapshot"`
}

// MatchEventType enumerates the append-only log's record types.
type MatchEventType string

const (
	EventMatchCreated          MatchEventType = "match_created"
	EventChallengeRevealed     MatchEventType = "challenge_revealed"
	EventPhaseStarted          MatchEventType = "phase_started"
	EventCanonInitialized      MatchEventType = "canon_initialized"
	EventTurnEmitted           MatchEventType = "turn_emitted"
	EventTurnValidationFailed  MatchEventType = "turn_validation_failed"
	EventVoteResult            MatchEventType = "vote_result"
	EventCanonPatchApplied     MatchEventType = "canon_patch_applied"
	EventPromptPackGenerated   MatchEventType = "prompt_pack_generated"
	EventMatchCompleted        MatchEventType = "match_completed"
	EventMatchFailed           MatchEventType = "match_failed"
)

// MatchEvent is one immutable entry in a match's append-only log.
type MatchEvent struct {
	ID      string         `json:"id"`
	Seq     int64          `json:"seq"`
	Ts      time.Time      `json:"ts"`
	MatchID string         `json:"match_id"`
	TeamID  *TeamID        `json:"team_id,omitempty"`
	Type    MatchEventType `json:"type"`
	Data    map[string]any `json:"data"`
}

// ConversationHandle is opaque per-(match,team) state threaded through the
// Provider Adapter. The engine never inspects its contents.
type ConversationHandle struct {
	Provider string         `json:"provider"`
	TeamID   TeamID         `json:"team_id"`
	Data     map[string]any `json:"data"`
}

// RepairContext carries the prior failed output and structured errors back
// into a repair-loop adapter call.
type RepairContext struct {
	PriorOutput *TurnOutput `json:"prior_output"`
	Errors      []string    `json:"errors"`
	Attempt     int         `json:"attempt"`
}

// TurnSpec names everything the adapter needs to produce one turn.
type TurnSpec struct {
	Role                  Role           `json:"role"`
	TurnType              TurnType       `json:"turn_type"`
	Phase                 int            `json:"phase"`
	Round                 int            `json:"round"`
	AllowedPatchPrefixes  []string       `json:"allowed_patch_prefixes"`
	ExpectedReferences    []string       `json:"expected_references,omitempty"`
	Tiebreak              bool           `json:"tiebreak,omitempty"`
	Hint                  string         `json:"hint,omitempty"`
	Repair                *RepairContext `json:"repair,omitempty"`
}

// Usage is the provider-reported cost of one adapter call. Its
// interpretation is provider-dependent and opaque to the engine.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// BlindJudgingEntry is one team's artifacts under its neutral blind label.
type BlindJudgingEntry struct {
	BlindID    string     `json:"blind_id"`
	Canon      Canon      `json:"canon"`
	PromptPack PromptPack `json:"prompt_pack"`
}

// BlindJudgingPackage is the full pair of blind entries for a match.
type BlindJudgingPackage struct {
	Entries []BlindJudgingEntry `json:"entries"`
}

// JudgingScores carries the five weighted score categories, each 1..5.
type JudgingScores struct {
	Narrative   int `json:"narrative" validate:"min=1,max=5"`
	Visual      int `json:"visual" validate:"min=1,max=5"`
	Originality int `json:"originality" validate:"min=1,max=5"`
	Coherence   int `json:"coherence" validate:"min=1,max=5"`
	Feasibility int `json:"feasibility" validate:"min=1,max=5"`
}

// WeightedTotal computes the read-side weighted total (25/20/20/20/15).
func (s JudgingScores) WeightedTotal() float64 {
	return float64(s.Narrative)*0.25 +
		float64(s.Visual)*0.20 +
		float64(s.Originality)*0.20 +
		float64(s.Coherence)*0.20 +
		float64(s.Feasibility)*0.15
}

// JudgingScoreRecord is one judge's submitted scorecard for a blind entry.
type JudgingScoreRecord struct {
	Judge       string        `json:"judge" validate:"required"`
	BlindID     string        `json:"blind_id" validate:"required,oneof=WORLD-1 WORLD-2"`
	Scores      JudgingScores `json:"scores"`
	Notes       string        `json:"notes,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// IsModifiable reports whether a match can still accept provider output
// (i.e. it has not reached a terminal state).
func (m *Match) IsModifiable() bool {
	return m.Status == MatchRunning
}
