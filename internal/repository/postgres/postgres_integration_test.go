//go:build integration

package postgres_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/rs/xid"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
	"github.com/sakif/study-tracker/internal/repository/postgres"
)

func newAccount(suffix string) *model.Account {
	token := "tok-" + suffix
	expires := time.Now().UTC().Add(24 * time.Hour)
	return &model.Account{
		Username:          "user-" + suffix,
		Email:             suffix + "@example.com",
		CredentialDigest:  "digest",
		VerificationToken: &token,
		TokenExpiresAt:    &expires,
	}
}

var _ = Describe("Migrate", func() {
	It("is idempotent", func() {
		version, err := postgres.Migrate(env.connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(3)))
	})
})

var _ = Describe("Accounts", func() {
	It("creates and reads back an unverified account", func() {
		a := newAccount(xid.New().String())
		Expect(env.db.Create(env.ctx, a)).To(Succeed())

		got, err := env.db.GetByUsername(env.ctx, a.Username)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Email).To(Equal(a.Email))
		Expect(got.IsVerified).To(BeFalse())
		Expect(got.VerificationToken).NotTo(BeNil())
	})

	It("rejects a duplicate username and a duplicate email", func() {
		suffix := xid.New().String()
		Expect(env.db.Create(env.ctx, newAccount(suffix))).To(Succeed())

		sameName := newAccount(xid.New().String())
		sameName.Username = "user-" + suffix
		Expect(env.db.Create(env.ctx, sameName)).To(MatchError(apperror.ErrConflict))

		sameEmail := newAccount(xid.New().String())
		sameEmail.Email = suffix + "@example.com"
		Expect(env.db.Create(env.ctx, sameEmail)).To(MatchError(apperror.ErrConflict))
	})

	It("lets exactly one of many concurrent registrations win", func() {
		suffix := xid.New().String()
		const racers = 8

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				a := newAccount(xid.New().String())
				a.Username = "race-" + suffix
				if err := env.db.Create(env.ctx, a); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else {
					Expect(err).To(MatchError(apperror.ErrConflict))
				}
			}()
		}
		wg.Wait()
		Expect(wins).To(Equal(1))
	})

	It("consumes a verification token once", func() {
		a := newAccount(xid.New().String())
		Expect(env.db.Create(env.ctx, a)).To(Succeed())

		ok, err := env.db.MarkVerified(env.ctx, *a.VerificationToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = env.db.MarkVerified(env.ctx, *a.VerificationToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		got, err := env.db.GetByUsername(env.ctx, a.Username)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.IsVerified).To(BeTrue())
		Expect(got.VerificationToken).To(BeNil())
		Expect(got.TokenExpiresAt).To(BeNil())
	})
})

var _ = Describe("Study data", func() {
	var username string

	BeforeEach(func() {
		a := newAccount(xid.New().String())
		Expect(env.db.Create(env.ctx, a)).To(Succeed())
		username = a.Username
	})

	It("replaces the subject set on save", func() {
		p := &model.Profile{Username: username, FullName: "A", Age: 16, Subjects: []string{"math", "art"}}
		Expect(env.db.SaveProfile(env.ctx, p)).To(Succeed())

		p.Subjects = []string{"physics"}
		Expect(env.db.SaveProfile(env.ctx, p)).To(Succeed())

		got, err := env.db.GetProfile(env.ctx, username)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Subjects).To(Equal([]string{"physics"}))
	})

	It("scopes assignments to their owner", func() {
		a := &model.Assignment{Username: username, Title: "Essay"}
		Expect(env.db.CreateAssignment(env.ctx, a)).To(Succeed())

		err := env.db.UpdateAssignmentStatus(env.ctx, "someone-else", a.ID, model.AssignmentDone)
		Expect(err).To(MatchError(apperror.ErrNotFound))

		Expect(env.db.UpdateAssignmentStatus(env.ctx, username, a.ID, model.AssignmentDone)).To(Succeed())
		list, err := env.db.ListAssignments(env.ctx, username)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
		Expect(list[0].Status).To(Equal(model.AssignmentDone))
	})

	It("tracks lesson reviews", func() {
		l := &model.Lesson{Username: username, Name: "Algebra"}
		Expect(env.db.CreateLesson(env.ctx, l)).To(Succeed())
		Expect(env.db.CreateLesson(env.ctx, &model.Lesson{Username: username, Name: "Algebra"})).
			To(MatchError(apperror.ErrConflict))

		got, err := env.db.MarkLessonStudied(env.ctx, username, l.ID, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ReviewCount).To(Equal(1))
		Expect(got.LastStudiedAt).NotTo(BeNil())

		Expect(env.db.DeleteLesson(env.ctx, username, l.ID)).To(Succeed())
		Expect(env.db.DeleteLesson(env.ctx, username, l.ID)).To(MatchError(apperror.ErrNotFound))
	})
})
