package deliberation

import "github.com/wbarena/arena/internal/core"

// tallyVotes implements spec.md §4.4 rule 6's vote aggregation: ACCEPT
// wins outright at 3+, a shared AMEND text with 2+ backers wins next,
// REJECT at 2+ blocks the round, and anything else is a DEADLOCK left to
// the synthesizer's tiebreak. sharedAmendText is the amendment summary at
// least two AMEND voters wrote identically, "" if none qualifies.
func tallyVotes(votes map[core.Role]core.VoteChoice, amendSummaries map[core.Role]string) (core.VoteResult, map[core.VoteChoice]int, string) {
	tally := map[core.VoteChoice]int{}
	for _, choice := range votes {
		tally[choice]++
	}

	if tally[core.VoteAccept] >= 3 {
		return core.ResultAccept, tally, ""
	}

	sharedAmendText := sharedAmendment(votes, amendSummaries)
	if tally[core.VoteAmend] >= 2 && sharedAmendText != "" {
		return core.ResultAmend, tally, sharedAmendText
	}

	if tally[core.VoteReject] >= 2 {
		return core.ResultReject, tally, ""
	}

	return core.ResultDeadlock, tally, ""
}

// sharedAmendment finds an amendment summary at least two AMEND voters
// wrote identically (case- and whitespace-sensitive exact match).
func sharedAmendment(votes map[core.Role]core.VoteChoice, amendSummaries map[core.Role]string) string {
	counts := make(map[string]int)
	for role, choice := range votes {
		if choice != core.VoteAmend {
			continue
		}
		text := amendSummaries[role]
		if text == "" {
			continue
		}
		counts[text]++
	}
	for text, n := range counts {
		if n >= 2 {
			return text
		}
	}
	return ""
}
