// Package canon implements the Canon Store (C3): the live canon document
// per team, RFC-6902-subset patch application, phase write restrictions,
// and canonical content hashing.
package canon

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/wbarena/arena/internal/contracts"
	"github.com/wbarena/arena/internal/core"
)

// Store holds one team's live canon and every operation that mutates it.
// A Store is owned exclusively by one team's engine; there is no
// cross-team access (spec.md §5).
type Store struct {
	mu   sync.Mutex
	doc  map[string]interface{}
	hash string
}

// NewStore creates an uninitialized store; call Init before use.
func NewStore() *Store {
	return &Store{}
}

// Init sets the canon to the given placeholder structure and returns its
// hash.
func (s *Store) Init(placeholder core.Canon) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := toMap(placeholder)
	if err != nil {
		return "", fmt.Errorf("init canon: %w", err)
	}
	s.doc = doc
	s.hash = HashDoc(doc)
	return s.hash, nil
}

// Hash returns the current canon's hash.
func (s *Store) Hash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hash
}

// Canon decodes the current document into a typed Canon.
func (s *Store) Canon() (core.Canon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c core.Canon
	if err := decodeCanon(s.doc, &c); err != nil {
		return core.Canon{}, err
	}
	return c, nil
}

// Apply applies patch under the given phase's write restrictions. On
// success it returns the before/after hashes and the canon's new live
// state is the applied result. On failure the canon is left unchanged and
// the error is a *RejectError.
func (s *Store) Apply(patch core.Patch, phase int) (beforeHash, afterHash string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if errs := contracts.ValidatePatch(patch); len(errs) > 0 {
		return "", "", &RejectError{Kind: RejectSemantics, Message: strings.Join(errs, "; ")}
	}

	allowed := AllowedPrefixes(phase)
	if len(allowed) == 0 {
		return "", "", &RejectError{Kind: RejectPhase, Message: fmt.Sprintf("phase %d is read-only", phase)}
	}
	for _, op := range patch {
		if !pathAllowed(op.Path, allowed) {
			return "", "", &RejectError{Kind: RejectPhase, Message: fmt.Sprintf("path %s not writable in phase %d", op.Path, phase)}
		}
		if (op.Op == core.PatchMove || op.Op == core.PatchCopy) && !pathAllowed(op.From, allowed) {
			return "", "", &RejectError{Kind: RejectPhase, Message: fmt.Sprintf("source path %s not writable in phase %d", op.From, phase)}
		}
	}

	before := s.hash
	newDoc, err := Apply(s.doc, patch)
	if err != nil {
		return "", "", &RejectError{Kind: RejectSemantics, Message: err.Error()}
	}

	if phase == 4 {
		var c core.Canon
		if decErr := decodeCanon(newDoc, &c); decErr != nil {
			return "", "", &RejectError{Kind: RejectSchemaInvalid, Message: decErr.Error()}
		}
		if errs := contracts.ValidateCanon(c); len(errs) > 0 {
			return "", "", &RejectError{Kind: RejectSchemaInvalid, Message: strings.Join(errs, "; ")}
		}
	}

	s.doc = newDoc
	s.hash = HashDoc(newDoc)
	return before, s.hash, nil
}

// DryRun reports whether patch would be accepted under phase's write
// restrictions, without mutating the store. Used by the Validator (C5)
// rule 7 to delegate phase-restriction checks to the Canon Store.
func (s *Store) DryRun(patch core.Patch, phase int) error {
	allowed := AllowedPrefixes(phase)
	if len(allowed) == 0 {
		return &RejectError{Kind: RejectPhase, Message: fmt.Sprintf("phase %d is read-only", phase)}
	}
	for _, op := range patch {
		if !pathAllowed(op.Path, allowed) {
			return &RejectError{Kind: RejectPhase, Message: fmt.Sprintf("path %s not writable in phase %d", op.Path, phase)}
		}
		if (op.Op == core.PatchMove || op.Op == core.PatchCopy) && !pathAllowed(op.From, allowed) {
			return &RejectError{Kind: RejectPhase, Message: fmt.Sprintf("source path %s not writable in phase %d", op.From, phase)}
		}
	}
	return nil
}

// Placeholder returns the initial placeholder canon for a team, seeded
// from the challenge so that the two teams' placeholders differ visibly
// from the outset (grounded on original_source's team-prefixed
// "Azure"/"Cinder" placeholder world names).
func Placeholder(team core.TeamID, challenge core.Challenge) core.Canon {
	prefix := "Azure"
	if team == core.TeamB {
		prefix = "Cinder"
	}
	return core.Canon{
		WorldName:      fmt.Sprintf("%s (working title)", prefix),
		GoverningLogic: "to be determined",
		AestheticMood:  "to be determined",
		Landmarks: []core.Landmark{
			{Name: "placeholder-1", Description: "pending", Significance: "pending", VisualKey: "pending"},
			{Name: "placeholder-2", Description: "pending", Significance: "pending", VisualKey: "pending"},
			{Name: "placeholder-3", Description: "pending", Significance: "pending", VisualKey: "pending"},
		},
		Inhabitants: core.Inhabitants{
			Appearance:          challenge.Inhabitants,
			CultureSnapshot:     "pending",
			RelationshipToPlace: "pending",
		},
		Tension: core.Tension{
			Conflict:            challenge.TwistConstraint,
			Stakes:              "pending",
			VisualManifestation: "pending",
		},
		HeroImageDescription: "pending",
	}
}

func toMap(c core.Canon) (map[string]interface{}, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeCanon(m map[string]interface{}, out *core.Canon) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
