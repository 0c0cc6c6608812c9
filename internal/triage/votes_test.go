package triage_test

import (
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AggregateVotes", func() {
	reportID := uuid.New()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	votes := []models.Vote{
		{ReportID: reportID, VoterID: alice, VoteType: models.VoteUp},
		{ReportID: reportID, VoterID: bob, VoteType: models.VoteUp},
		{ReportID: reportID, VoterID: carol, VoteType: models.VoteDown},
	}

	It("counts up and down votes", func() {
		s := triage.AggregateVotes(votes, nil)
		Expect(s.UpVotes).To(Equal(2))
		Expect(s.DownVotes).To(Equal(1))
		Expect(s.UserVote).To(BeNil())
	})

	It("reports the caller's own vote", func() {
		s := triage.AggregateVotes(votes, &carol)
		Expect(s.UserVote).NotTo(BeNil())
		Expect(*s.UserVote).To(Equal(models.VoteDown))
	})

	It("leaves UserVote empty for a caller who has not voted", func() {
		stranger := uuid.New()
		Expect(triage.AggregateVotes(votes, &stranger).UserVote).To(BeNil())
	})

	It("handles reports without votes", func() {
		s := triage.AggregateVotes(nil, &alice)
		Expect(s).To(Equal(triage.VoteSummary{}))
	})
})
