package triage

import (
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/google/uuid"
)

type VoteSummary struct {
	UpVotes   int              `json:"up_votes"`
	DownVotes int              `json:"down_votes"`
	UserVote  *models.VoteType `json:"user_vote"`
}

// AggregateVotes tallies the full vote set of one report. caller may be nil
// for anonymous viewers, in which case UserVote is nil.
func AggregateVotes(votes []models.Vote, caller *uuid.UUID) VoteSummary {
	var s VoteSummary
	for i := range votes {
		switch votes[i].VoteType {
		case models.VoteUp:
			s.UpVotes++
		case models.VoteDown:
			s.DownVotes++
		}
		if caller != nil && votes[i].VoterID == *caller {
			vt := votes[i].VoteType
			s.UserVote = &vt
		}
	}
	return s
}
